package generator

import (
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/seitarof/gen-nodewalk/internal/classifier"
)

// MarshalPlan renders the plan manifest: every program, dispatch entry and
// the container shape, in plan order.
func MarshalPlan(plan *classifier.Plan) ([]byte, error) {
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal plan: %w", err)
	}
	return append(data, '\n'), nil
}

// WritePlan writes the plan manifest to path.
func WritePlan(w FileWriter, path string, plan *classifier.Plan) error {
	data, err := MarshalPlan(plan)
	if err != nil {
		return err
	}
	if err := w.Write(path, data); err != nil {
		return fmt.Errorf("write plan: %w", err)
	}
	return nil
}
