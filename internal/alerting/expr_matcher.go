package alerting

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/good-yellow-bee/eventalerts/internal/models"
)

// ExprMatcher compiles and evaluates expr-lang expressions against raw events.
type ExprMatcher struct {
	expression string
	program    *vm.Program
}

// NewExprMatcher creates a new ExprMatcher for the given expression.
func NewExprMatcher(expression string) (*ExprMatcher, error) {
	m := &ExprMatcher{expression: expression}
	if err := m.compile(); err != nil {
		return nil, err
	}
	return m, nil
}

// compile type checks the expression against a sample environment.
// Operators: alert_type == "error", title contains "db", "prod" in tags.
func (m *ExprMatcher) compile() error {
	program, err := expr.Compile(m.expression,
		expr.Env(buildSampleEnv()),
		expr.AsBool(),
	)
	if err != nil {
		return fmt.Errorf("compile expression: %w", err)
	}
	m.program = program
	return nil
}

// Match evaluates the expression against a raw event.
func (m *ExprMatcher) Match(ev *models.RawEvent) (bool, error) {
	result, err := expr.Run(m.program, buildEnvFromEvent(ev))
	if err != nil {
		return false, fmt.Errorf("evaluate expression: %w", err)
	}

	matched, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("expression did not return bool: got %T", result)
	}
	return matched, nil
}

// Expression returns the original expression string.
func (m *ExprMatcher) Expression() string {
	return m.expression
}

func buildSampleEnv() map[string]any {
	return map[string]any{
		"title":      "",
		"text":       "",
		"priority":   "",
		"alert_type": "",
		"monitor_id": int64(0),
		"tags":       []string{},
		"source":     "",
	}
}

func buildEnvFromEvent(ev *models.RawEvent) map[string]any {
	tags := ev.Tags
	if tags == nil {
		tags = []string{}
	}
	return map[string]any{
		"title":      ev.Title,
		"text":       ev.Text,
		"priority":   string(models.ParsePriority(string(ev.Priority))),
		"alert_type": strings.ToLower(string(ev.AlertType)),
		"monitor_id": ev.MonitorIDValue(),
		"tags":       tags,
		"source":     ev.Source,
	}
}

// compileFilter returns nil for an empty expression.
func compileFilter(expression string) (*ExprMatcher, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, nil
	}
	m, err := NewExprMatcher(expression)
	if err != nil {
		return nil, &models.ConfigError{Field: "event_filter", Reason: err.Error()}
	}
	return m, nil
}

// PassesPriority reports whether the raw event meets the minimum priority.
func PassesPriority(ev *models.RawEvent, min models.Priority) bool {
	return models.ParsePriority(string(ev.Priority)).AtLeast(min)
}
