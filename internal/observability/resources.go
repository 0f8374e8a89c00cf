package observability

import "github.com/worksite-pm/worksite/internal/shared"

func labelSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}

var (
	resourceLabels = labelSet(shared.Resources())
	actionLabels   = labelSet(shared.Actions())
)

func knownResource(resource string) bool {
	_, ok := resourceLabels[resource]
	return ok
}

func knownAction(action string) bool {
	_, ok := actionLabels[action]
	return ok
}
