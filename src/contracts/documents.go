package contracts

// LogDocument is the retrieval unit stored in and searched against the
// index store. Field names match the wire shape (snake_case) the index
// mapping expects, per spec.md §3.
type LogDocument struct {
	// ID is the store-assigned document id. Not part of the indexed
	// source body; carried alongside it for merge/delete bookkeeping.
	ID DocID `json:"-"`

	LaunchID       int64  `json:"launch_id"`
	LaunchName     string `json:"launch_name"`
	TestItem       int64  `json:"test_item"`
	UniqueID       string `json:"unique_id"`
	IsAutoAnalyzed bool   `json:"is_auto_analyzed"`
	IssueType      string `json:"issue_type"`
	LogLevel       int    `json:"log_level"`
	StartTime      string `json:"start_time"`

	Message                                 string `json:"message"`
	MessageExtended                         string `json:"message_extended"`
	MessageWithoutParamsExtended            string `json:"message_without_params_extended"`
	MessageWithoutParamsAndBrackets         string `json:"message_without_params_and_brackets"`
	DetectedMessage                         string `json:"detected_message"`
	DetectedMessageExtended                 string `json:"detected_message_extended"`
	DetectedMessageWithoutParamsExtended    string `json:"detected_message_without_params_extended"`
	DetectedMessageWithoutParamsAndBrackets string `json:"detected_message_without_params_and_brackets"`
	DetectedMessageWithNumbers              string `json:"detected_message_with_numbers"`

	Stacktrace         string `json:"stacktrace"`
	StacktraceExtended string `json:"stacktrace_extended"`

	MergedSmallLogs         string `json:"merged_small_logs"`
	OnlyNumbers             string `json:"only_numbers"`
	MessageParams           string `json:"message_params"`
	Urls                    string `json:"urls"`
	Paths                   string `json:"paths"`
	FoundExceptionsExtended string `json:"found_exceptions_extended"`
	PotentialStatusCodes    string `json:"potential_status_codes"`

	IsMerged        bool   `json:"is_merged"`
	OriginalMessage string `json:"original_message"`

	// Extra carries any opaque, mapping-defined fields this struct doesn't
	// model explicitly, so a richer index mapping never loses data on a
	// read-modify-write round trip.
	Extra map[string]any `json:"-"`
}

// DocID is the identifier this document will be stored under. Raw logs
// use the bare log id; merged documents append "_m"; split big documents
// append "_big".
type DocID string

// RealID strips any "_m"/"_big" suffix, per spec.md §6's extract_real_id.
func (id DocID) RealID() int64 {
	s := string(id)
	for _, suffix := range []string{"_m", "_big"} {
		if len(s) > len(suffix) && s[len(s)-len(suffix):] == suffix {
			s = s[:len(s)-len(suffix)]
			break
		}
	}
	var n int64
	neg := false
	i := 0
	if i < len(s) && s[i] == '-' {
		neg = true
		i++
	}
	for ; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int64(c-'0')
	}
	if neg {
		n = -n
	}
	return n
}
