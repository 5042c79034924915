package download

import "encoding/json"

// Counters are the cumulative results of one run.
type Counters struct {
	Successful        int `json:"successful"`
	AlreadyDownloaded int `json:"already_downloaded"`
	Failed            int `json:"failed"`
	ProcessedRows     int `json:"processed_rows"`
}

// JSON renders the counters for the task results column.
func (c Counters) JSON() string {
	data, err := json.Marshal(c)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// ParseCounters reads counters written by JSON. Empty input gives zero counters.
func ParseCounters(raw string) (Counters, error) {
	var c Counters
	if raw == "" {
		return c, nil
	}
	err := json.Unmarshal([]byte(raw), &c)
	return c, err
}
