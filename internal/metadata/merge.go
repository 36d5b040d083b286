package metadata

// Required names the trace metadata fields that must survive any merge.
// They are re-asserted after merging so no bundle can omit or blank them.
type Required struct {
	WorkflowID   string
	AgentVersion string
	AppVersion   string
}

// Merge shallow-merges the bundles in order (later bundles win), then
// re-asserts the required field set from the most authoritative source:
// the event-specific bundle when it carries a non-empty value, otherwise
// the configured required values.
func Merge(required Required, event, environment, client, request map[string]any) map[string]any {
	merged := map[string]any{}
	for _, bundle := range []map[string]any{event, environment, client, request} {
		for k, v := range bundle {
			merged[k] = v
		}
	}

	merged["workflowId"] = assertField(event, "workflowId", required.WorkflowID)
	merged["agentVersion"] = assertField(event, "agentVersion", required.AgentVersion)
	appVersion := assertField(event, "appVersion", required.AppVersion)
	merged["appVersion"] = appVersion
	merged["applicationVersion"] = appVersion
	merged["displayType"] = "chatkit"

	return merged
}

func assertField(event map[string]any, key, fallback string) string {
	if s, ok := event[key].(string); ok && s != "" {
		return s
	}
	return fallback
}
