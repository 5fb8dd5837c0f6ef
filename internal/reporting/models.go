package reporting

// DateLayout is the only accepted date format for range queries.
const DateLayout = "2006-01-02"

const (
	AllLogsLimit      = 100
	NumberLogsLimit   = 50
	DashboardLimit    = 1000
	unknownNumberName = "Unknown"
)

// NumberStats aggregates calls placed from one originating number.
type NumberStats struct {
	Total         int `json:"total"`
	Completed     int `json:"completed"`
	Busy          int `json:"busy"`
	Failed        int `json:"failed"`
	NoAnswer      int `json:"no_answer"`
	InProgress    int `json:"in_progress"`
	TotalDuration int `json:"totalDuration"`
}

// Dashboard is the response of DashboardStats. From and To echo the
// resolved range as YYYY-MM-DD.
type Dashboard struct {
	From  string                 `json:"from"`
	To    string                 `json:"to"`
	Stats map[string]NumberStats `json:"stats"`
}
