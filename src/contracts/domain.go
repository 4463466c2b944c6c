package contracts

// Log is a single log line belonging to a test item.
type Log struct {
	LogID    int64  `json:"logId"`
	Message  string `json:"message"`
	LogLevel int    `json:"logLevel"`
}

// TestItem is one test case within a launch, carrying zero or more logs.
type TestItem struct {
	TestItemID     int64  `json:"testItemId"`
	UniqueID       string `json:"uniqueId"`
	IsAutoAnalyzed bool   `json:"isAutoAnalyzed"`
	IssueType      string `json:"issueType"`
	Logs           []Log  `json:"logs"`
}

// AnalyzerConfig carries the per-launch analysis tuning knobs. Zero values
// for MinDocFreq/MinTermFreq/MinShouldMatch mean "use the global search
// config default" — see config.SearchConfig.
type AnalyzerConfig struct {
	AnalyzerMode     AnalyzerMode `json:"analyzerMode"`
	MinShouldMatch   int          `json:"minShouldMatch"`
	MinDocFreq       int          `json:"minDocFreq"`
	MinTermFreq      int          `json:"minTermFreq"`
	NumberOfLogLines int          `json:"numberOfLogLines"` // -1 means "all lines"
}

// Launch is a single execution of a suite, containing test items.
type Launch struct {
	LaunchID       int64          `json:"launchId"`
	LaunchName     string         `json:"launchName"`
	Project        int64          `json:"project"`
	AnalyzerConfig AnalyzerConfig `json:"analyzerConfig"`
	TestItems      []TestItem     `json:"testItems"`
}

// AnalysisResult is the outcome of auto-classifying one test item.
type AnalysisResult struct {
	TestItem     int64  `json:"testItem"`
	IssueType    string `json:"issueType"`
	RelevantItem int64  `json:"relevantItem"`
}

// SuggestAnalyzerConfig carries everything the suggest pipeline needs about
// the requesting test item, independent of any surrounding launch.
type SuggestAnalyzerConfig struct {
	TestItemID     int64          `json:"testItemId"`
	Project        int64          `json:"project"`
	LaunchID       int64          `json:"launchId"`
	LaunchName     string         `json:"launchName"`
	AnalyzerConfig AnalyzerConfig `json:"analyzerConfig"`
	Logs           []Log          `json:"logs"`
}

// SuggestAnalysisResult is one ranked candidate returned by the suggest
// pipeline, with the metadata spec.md §4.10 requires for UI display and
// debugging.
type SuggestAnalysisResult struct {
	TestItem           int64   `json:"testItem"`
	TestItemLogID      int64   `json:"testItemLogId"`
	IssueType          string  `json:"issueType"`
	RelevantItem       int64   `json:"relevantItem"`
	RelevantLogID      int64   `json:"relevantLogId"`
	MatchScore         float64 `json:"matchScore"`
	EsScore            float64 `json:"esScore"`
	EsPosition         int     `json:"esPosition"`
	ModelFeatureNames  string  `json:"modelFeatureNames"`
	ModelFeatureValues string  `json:"modelFeatureValues"`
	ModelInfo          string  `json:"modelInfo"`
	ResultPosition     int     `json:"resultPosition"`
	UsedLogLines       int     `json:"usedLogLines"`
	MinShouldMatch     int     `json:"minShouldMatch"`
}

// SearchLogsRequest is the input to the search-logs operation: find
// historical logs similar to a set of caller-supplied messages, excluding
// one test item and restricted to a set of launches.
type SearchLogsRequest struct {
	LaunchID          int64    `json:"launchId"`
	LaunchName        string   `json:"launchName"`
	ItemID            int64    `json:"itemId"`
	ProjectID         int64    `json:"projectId"`
	FilteredLaunchIDs []int64  `json:"filteredLaunchIds"`
	LogMessages       []string `json:"logMessages"`
	LogLines          int      `json:"logLines"`
}

// CleanIndex identifies a set of raw log ids to remove from one project's
// index.
type CleanIndex struct {
	Project string  `json:"project"`
	IDs     []int64 `json:"ids"`
}

// SearchLogsResult identifies one historical log the search-logs operation
// found similar to a caller-supplied message.
type SearchLogsResult struct {
	LogID      int64 `json:"logId"`
	TestItemID int64 `json:"testItemId"`
}
