package wrappers

import (
	"context"
	"fmt"
	"strings"

	"github.com/user/cisaudit/pkg/engine"
)

// RemediationWrapper implements the Tool interface for generating remediation plans
type RemediationWrapper struct {
	Engine *engine.RemediationEngine
}

func (r *RemediationWrapper) Name() string {
	return "GenerateRemediation"
}

func (r *RemediationWrapper) Description() string {
	return "Generates a remediation plan (fix/validate/rollback commands) for a failing control. If no control id is given, lists the controls that have templates and the variables they need."
}

func (r *RemediationWrapper) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"control_id": map[string]interface{}{
				"type":        "string",
				"description": "The control id to remediate. If omitted, lists available templates.",
			},
			"variables": map[string]interface{}{
				"type":        "string",
				"description": "Template variables as comma separated key=value pairs (e.g. 'dockerfile=Dockerfile,user=app').",
			},
		},
	}
}

// parseVariables accepts a JSON object or "k=v,k2=v2".
func parseVariables(v interface{}) map[string]string {
	vars := make(map[string]string)
	switch t := v.(type) {
	case map[string]interface{}:
		for k, val := range t {
			vars[k] = fmt.Sprintf("%v", val)
		}
	case map[string]string:
		for k, val := range t {
			vars[k] = val
		}
	case string:
		for _, pair := range strings.Split(t, ",") {
			k, val, ok := strings.Cut(pair, "=")
			if ok && strings.TrimSpace(k) != "" {
				vars[strings.TrimSpace(k)] = strings.TrimSpace(val)
			}
		}
	}
	return vars
}

func (r *RemediationWrapper) Execute(ctx context.Context, args map[string]interface{}, progress func(string)) (string, error) {
	if r.Engine == nil {
		return "Error: Remediation engine not initialized.", nil
	}

	controlID, _ := args["control_id"].(string)
	vars := parseVariables(args["variables"])

	if controlID == "" {
		templates := r.Engine.ListTemplates()
		if len(templates) == 0 {
			return "No remediation templates found.", nil
		}
		var sb strings.Builder
		sb.WriteString("Available Remediation Templates:\n")
		for _, line := range templates {
			id, _, _ := strings.Cut(line, ":")
			sb.WriteString(fmt.Sprintf("- %s (variables: %s)\n", line, strings.Join(r.Engine.Templates[id].Variables, ", ")))
		}
		return sb.String(), nil
	}

	if progress != nil {
		progress(fmt.Sprintf("Generating remediation plan for %s...", controlID))
	}

	plan, err := r.Engine.GeneratePlan(controlID, vars)
	if err != nil {
		return fmt.Sprintf("Error generating plan: %v", err), nil
	}
	return plan, nil
}
