package alerter

import (
	"fmt"
	"strings"

	"ConnSpectra/internal/analysis"
	"ConnSpectra/internal/config"
	"ConnSpectra/internal/model"

	"github.com/gomarkdown/markdown"
	log "github.com/sirupsen/logrus"
)

// Metrics that rules can be written against.
const (
	MetricConnections       = "connections"
	MetricUnterminated      = "unterminated"
	MetricUnterminatedRatio = "unterminated_ratio"
	MetricDisorder          = "disorder"
	MetricMeanDuration      = "mean_duration"
)

// PhaseAll selects the whole capture instead of a single phase.
const PhaseAll = "all"

// Alert is a rule that fired, with the value that triggered it.
type Alert struct {
	Rule  config.AlerterRule
	Value float64
}

func (a Alert) String() string {
	return fmt.Sprintf("%s: %s of phase '%s' is %.4g (%s %.4g)",
		a.Rule.Name, a.Rule.Metric, phaseName(a.Rule.Phase), a.Value, a.Rule.Operator, a.Rule.Threshold)
}

// Alerter evaluates finalized reports against predefined rules and triggers
// notifications when rules fire.
type Alerter struct {
	rules    []config.AlerterRule
	window   analysis.Window
	notifier model.Notifier
}

// NewAlerter creates a new Alerter instance.
func NewAlerter(cfg *config.AlerterConfig, window analysis.Window, notifier model.Notifier) (*Alerter, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}
	for _, rule := range cfg.Rules {
		if _, err := metricValue(analysis.PhaseStats{}, rule.Metric); err != nil {
			return nil, fmt.Errorf("rule '%s': %w", rule.Name, err)
		}
		switch phaseName(rule.Phase) {
		case PhaseAll, string(analysis.PhaseBefore), string(analysis.PhaseDuring), string(analysis.PhaseAfter):
		default:
			return nil, fmt.Errorf("rule '%s': unknown phase '%s'", rule.Name, rule.Phase)
		}
	}
	return &Alerter{rules: cfg.Rules, window: window, notifier: notifier}, nil
}

// Evaluate returns the alerts triggered by the summary of report.
func (a *Alerter) Evaluate(summary analysis.Summary) []Alert {
	var alerts []Alert
	for _, rule := range a.rules {
		stats := summary.Overall
		if p := phaseName(rule.Phase); p != PhaseAll {
			stats = summary.Phases[analysis.Phase(p)]
		}
		value, err := metricValue(stats, rule.Metric)
		if err != nil {
			continue
		}
		if check(value, rule.Threshold, rule.Operator) {
			alerts = append(alerts, Alert{Rule: rule, Value: value})
		}
	}
	return alerts
}

// Check analyzes report, evaluates every rule and sends one notification if any fired.
func (a *Alerter) Check(report *model.Report) error {
	summary := analysis.Analyze(report, a.window)
	alerts := a.Evaluate(summary)
	if len(alerts) == 0 {
		return nil
	}
	log.Printf("Alerter evaluation of run '%s' completed. %d alert(s) triggered.", report.RunID, len(alerts))
	return a.Notify(report, summary, alerts)
}

// Notify renders the alerts as an HTML summary and sends it.
func (a *Alerter) Notify(report *model.Report, summary analysis.Summary, alerts []Alert) error {
	if a.notifier == nil {
		return nil
	}
	body := markdown.ToHTML([]byte(renderMarkdown(report, summary, alerts)), nil, nil)
	subject := fmt.Sprintf("ConnSpectra Alert Summary for '%s' (%d Triggered)", report.RunID, len(alerts))
	if err := a.notifier.Send(subject, string(body)); err != nil {
		return fmt.Errorf("failed to send alert notification: %w", err)
	}
	log.Printf("Alert notification for run '%s' sent successfully.", report.RunID)
	return nil
}

func renderMarkdown(report *model.Report, summary analysis.Summary, alerts []Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# ConnSpectra Alert Summary\n\n")
	fmt.Fprintf(&b, "Run `%s` from `%s`, attack window %.2fs to %.2fs.\n\n",
		report.RunID, report.Source, summary.Window.Begin, summary.Window.Finish)

	b.WriteString("## Triggered rules\n\n")
	for _, alert := range alerts {
		fmt.Fprintf(&b, "- %s\n", alert)
	}

	b.WriteString("\n## Connections per phase\n\n")
	b.WriteString("| phase | connections | unterminated | disorder | mean duration (s) |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, p := range analysis.Phases {
		s := summary.Phases[p]
		fmt.Fprintf(&b, "| %s | %d | %d | %d | %.3f |\n", p, s.Connections, s.Unterminated, s.Disorder, s.MeanDuration)
	}
	return b.String()
}

func metricValue(s analysis.PhaseStats, metric string) (float64, error) {
	switch metric {
	case MetricConnections:
		return float64(s.Connections), nil
	case MetricUnterminated:
		return float64(s.Unterminated), nil
	case MetricUnterminatedRatio:
		return s.UnterminatedRatio(), nil
	case MetricDisorder:
		return float64(s.Disorder), nil
	case MetricMeanDuration:
		return s.MeanDuration, nil
	default:
		return 0, fmt.Errorf("unknown metric '%s'", metric)
	}
}

func phaseName(phase string) string {
	if phase == "" {
		return PhaseAll
	}
	return phase
}

// check compares a value against a threshold using the given operator.
func check(value, threshold float64, operator string) bool {
	switch operator {
	case ">":
		return value > threshold
	case "<":
		return value < threshold
	case "=":
		return value == threshold
	case ">=":
		return value >= threshold
	case "<=":
		return value <= threshold
	default:
		log.Printf("Warning: unknown operator '%s' in alerter rule", operator)
		return false
	}
}
