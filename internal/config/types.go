package config

// Config is the on-disk shape of the islandbridge configuration file.
// Durations are strings ("200ms", "5s") parsed by the consumers.
type Config struct {
	Logging LoggingConfig `json:"logging"`
	Storage StorageConfig `json:"storage"`
	Host    HostConfig    `json:"host"`
	Bridge  BridgeConfig  `json:"bridge"`
	Theme   ThemeConfig   `json:"theme"`
	Widgets WidgetsConfig `json:"widgets"`
	Debug   DebugConfig   `json:"debug"`
}

type LoggingConfig struct {
	Level   string            `json:"level"`
	Console bool              `json:"console"`
	File    LoggingFileConfig `json:"file"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// DebugConfig controls the optional local status + pprof HTTP server.
type DebugConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
	Token   string `json:"token"`
}

type StorageConfig struct {
	// Driver: "none" | "file" | "sqlite"
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout"`
}

type HostConfig struct {
	// Driver: "freedesktop" | "memory"
	Driver string `json:"driver"`
	// AppName is the sender name used for posted islands. Notifications from
	// this app are never translated.
	AppName    string  `json:"app_name"`
	RatePerSec float64 `json:"rate_per_sec"`
}

// Limit modes for the active island pool.
const (
	LimitMostRecent = "most_recent"
	LimitFirstCome  = "first_come"
	LimitPriority   = "priority"
)

// Action display modes.
const (
	ActionModeText = "text"
	ActionModeIcon = "icon"
	ActionModeBoth = "both"
)

// Navigation slot contents.
const (
	NavInstruction = "instruction"
	NavDistance    = "distance"
	NavETA         = "eta"
	NavDistanceETA = "distance_eta"
	NavNone        = "none"
)

// Widget render modes.
const (
	RenderLive     = "live"
	RenderSnapshot = "snapshot"
)

type BridgeConfig struct {
	// AllowedPackages limits translation to these packages. An empty list
	// translates every package that is not ignored; list packages to make
	// translation opt-in.
	AllowedPackages []string `json:"allowed_packages"`
	IgnoredPackages []string `json:"ignored_packages"`

	LimitMode    string   `json:"limit_mode"`
	PriorityList []string `json:"priority_list"`
	BlockedTerms []string `json:"blocked_terms"`

	Global    IslandConfig         `json:"global"`
	Apps      map[string]AppConfig `json:"apps"`
	NavLayout NavLayout            `json:"nav_layout"`
	Keywords  KeywordsConfig       `json:"keywords"`

	Debounce     string `json:"debounce"`
	ResolveDelay string `json:"resolve_delay"`
	// Sweep is a cron spec for registry reconciliation (default "@every 1m").
	Sweep string `json:"sweep"`
}

// IslandConfig is layered: nil fields inherit from the global config.
type IslandConfig struct {
	Float     *bool   `json:"float,omitempty"`
	ShowShade *bool   `json:"show_shade,omitempty"`
	Timeout   *string `json:"timeout,omitempty"`
}

type AppConfig struct {
	// EnabledTypes nil means every semantic type is translated.
	EnabledTypes    []string     `json:"enabled_types"`
	BlockedTerms    []string     `json:"blocked_terms"`
	Island          IslandConfig `json:"island"`
	NavLayout       *NavLayout   `json:"nav_layout,omitempty"`
	HideReplies     bool         `json:"hide_replies"`
	RedirectReplies *bool        `json:"redirect_replies,omitempty"`
	ActionMode      string       `json:"action_mode"`
}

type NavLayout struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

type KeywordsConfig struct {
	CallHangup     []string `json:"call_hangup"`
	CallAnswer     []string `json:"call_answer"`
	CallSpeaker    []string `json:"call_speaker"`
	NavArrival     []string `json:"nav_arrival"`
	ProgressFinish []string `json:"progress_finish"`
	NowPlaying     string   `json:"now_playing"`
}

type ThemeConfig struct {
	Dir    string `json:"dir"`
	Active string `json:"active"`
}

type WidgetsConfig struct {
	Saved      []int                   `json:"saved"`
	CaptureDir string                  `json:"capture_dir"`
	Config     map[string]WidgetConfig `json:"config"`
}

type WidgetConfig struct {
	RenderMode string `json:"render_mode"`
	Timeout    string `json:"timeout"`
	ShowShade  *bool  `json:"show_shade,omitempty"`
}
