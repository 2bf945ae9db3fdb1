// Package storage persists the metadata of islands the host has posted.
//
// The notification server does not hand hints back when a notification is
// closed, so the original source key embedded at post time is kept here and
// survives restarts. Drivers: "file" (snapshot + JSONL journal) and "sqlite"
// (build tag sqlite). Open returns (nil, nil) when storage is disabled.
package storage
