package contracts

// TrainModelsMessage is published on RoutingKeyTrainModels whenever a
// RetrainingTrigger threshold is crossed for a project and model type.
type TrainModelsMessage struct {
	ModelType              string `json:"model_type"`
	ProjectID              int64  `json:"project_id"`
	NumLogsWithDefectTypes int    `json:"num_logs_with_defect_types"`
}

// StatsInfoMessage is published on RoutingKeyStatsInfo after a suggest
// request that reached the ranking step. It is only published; nothing
// writes it into StatsIndexName.
type StatsInfoMessage struct {
	Method           string  `json:"method"`
	Project          int64   `json:"project"`
	GatherDate       string  `json:"gather_date"`
	NumberOfItems    int     `json:"number_of_items"`
	NumberOfLogLines int     `json:"number_of_log_lines"`
	ModelInfo        string  `json:"model_info"`
	MinShouldMatch   int     `json:"min_should_match"`
	SavedTimePerItem float64 `json:"saved_time_per_item"`
}
