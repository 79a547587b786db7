package sink

import (
	"fmt"
	"io"
	"strings"

	"github.com/itohio/gooven/pkg/channel"
	"github.com/itohio/gooven/pkg/supervisor"
)

const reportRule = "-----------------------------------------------------------------------"

// Console prints the per-cycle operator report.
type Console struct {
	w io.Writer
}

// NewConsole creates a console report writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// Publish writes one report.
func (c *Console) Publish(cy supervisor.Cycle) error {
	var b strings.Builder

	fmt.Fprintf(&b, "\nCurrent date and time: %s\n", cy.Time.Format("2006-01-02 at 15:04:05"))

	if cy.Sample != nil {
		b.WriteString("\nSample Channel\n")
		writeTemperature(&b, cy.Sample.Temperature)
	}

	for _, ch := range cy.Channels {
		fmt.Fprintf(&b, "\n%s\n", ch.Name)
		if ch.Faulted {
			b.WriteString("Thermocouple is not functioning\n")
			continue
		}
		fmt.Fprintf(&b, "Target Temperature: %.2f\n", ch.Target)
		writeTemperature(&b, ch.Temperature)
		fmt.Fprintf(&b, "Output: %s\n", ch.Output)
		fmt.Fprintf(&b, "Proportional term: %s\n", ch.Proportional)
		fmt.Fprintf(&b, "Integral term: %s\n", ch.Integral)
	}

	b.WriteString("\n" + reportRule + "\n")

	if _, err := io.WriteString(c.w, b.String()); err != nil {
		return fmt.Errorf("failed to write console report: %w", err)
	}
	return nil
}

func writeTemperature(b *strings.Builder, t channel.Telemetry) {
	if t.IsFaulted() {
		b.WriteString("Thermocouple is not functioning\n")
		return
	}
	fmt.Fprintf(b, "Temperature: %s\n", t)
}
