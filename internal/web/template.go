package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/heater-share/internal/heater"
	"github.com/sweeney/heater-share/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"pct": func(v float64) string {
		return fmt.Sprintf("%.1f%%", v*100)
	},
	"box": func(b int) string {
		if b < 0 {
			return "-"
		}
		return fmt.Sprintf("%d", b)
	},
	"stateClass": func(s heater.State) string {
		switch s {
		case heater.StateActive:
			return "on"
		case heater.StateAssigned:
			return "assigned"
		}
		return "off"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Heater Share</title>
<style>
body { font-family: monospace; max-width: 760px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.on { color: green; font-weight: bold; }
.assigned { color: orange; }
.off { color: #888; }
.warn { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Heater Share</h1>
{{range .Groups}}
<h2 id="group-{{.Name}}">{{.Name}}{{if .Config.IsBed}} (bed){{end}}</h2>
<table>
<tr><th>Mode</th><td>{{.Config.Mode}}</td></tr>
<tr><th>Cycle</th><td>{{.Config.CycleTime}}</td></tr>
<tr><th>Max active</th><td>{{.Config.MaxActive}}</td></tr>
<tr><th>Switching delay</th><td>{{.Config.SwitchDelay}}</td></tr>
<tr><th>Cycles</th><td>{{.Cycles}}{{if .Degenerate}} <span class="warn">({{.Degenerate}} too short)</span>{{end}}</td></tr>
</table>
<table>
<tr><th>Heater</th><th>State</th><th>Requested</th><th>Realized</th><th>Box</th><th>Temp</th><th>Target</th></tr>
{{range .Heaters}}<tr><td>{{.Name}}</td><td class="{{stateClass .State}}">{{.State}}</td><td>{{pct .Duty}}</td><td>{{pct .Realized}}</td><td>{{box .Box}}</td><td>{{printf "%.1f" .Temp}}</td><td>{{printf "%.1f" .Target}}</td></tr>
{{end}}</table>
{{range .Report.Warnings}}<p class="warn">{{.}}</p>
{{end}}{{else}}
<p>No heater groups configured.</p>
{{end}}
<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Topic prefix</th><td>{{.Config.TopicPrefix}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02 15:04:05 UTC"}}</td></tr>
{{if .Config.ConfigPath}}<tr><th>Config</th><td>{{.Config.ConfigPath}}</td></tr>{{end}}
</table>

<p><a href="/index.json">JSON</a> · <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
