// internal/workers/requests/request-created/models.go
package requestcreated

// Input is the job payload for a newly created request document.
type Input struct {
	RequestID string                 `json:"requestId"`
	Request   map[string]interface{} `json:"request"`
	Params    map[string]interface{} `json:"params,omitempty"`
	Auth      map[string]interface{} `json:"auth,omitempty"`
}

type Output struct {
	RequestID      string `json:"requestId"`
	MailID         string `json:"mailId"`
	Dispatched     int    `json:"dispatched"`
	DispatchFailed int    `json:"dispatchFailed"`
}

// DispatchResult counts per-recipient publish outcomes.
type DispatchResult struct {
	Sent    int
	Skipped int
	Failed  int
}

// requestData returns a copy of the request fields with id set.
func (in *Input) requestData() map[string]interface{} {
	data := make(map[string]interface{}, len(in.Request)+1)
	for k, v := range in.Request {
		data[k] = v
	}
	data["id"] = in.RequestID
	return data
}
