package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/photometer/internal/status"
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
	"stamp": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format("2006-01-02T15:04:05Z")
	},
	"stateOrStarting": func(s string) string {
		if s == "" {
			return "STARTING"
		}
		return s
	},
	"f1": func(v float64) string { return fmt.Sprintf("%.1f", v) },
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="30">
<title>Photometer</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.measuring { color: green; font-weight: bold; }
.waiting { color: #888; }
.stopped { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
.fault { color: red; }
</style>
</head>
<body>
<h1>Photometer</h1>

<h2>Scheduler</h2>
<table>
{{- $state := stateOrStarting (printf "%s" .State)}}
<tr><th>State</th><td id="state" class="{{if eq $state "MEASURING"}}measuring{{else if eq $state "STOPPED"}}stopped{{else}}waiting{{end}}">{{$state}}</td></tr>
<tr><th>Cycles</th><td>{{.CyclesCompleted}}</td></tr>
<tr><th>Records</th><td>{{.RecordsWritten}}</td></tr>
<tr><th>Last cycle</th><td>{{stamp .LastCycleStart}}{{if not .LastCycleStart.IsZero}} ({{.LastCycleDuration}}){{end}}</td></tr>
<tr><th>Next cycle</th><td>{{stamp .NextDue}}</td></tr>
{{if .LastFault}}<tr><th>Fault</th><td class="fault">{{.LastFault}}</td></tr>{{end}}
</table>

<h2>Storage</h2>
<table>
<tr><th>Log</th><td>{{.Config.LogPath}}</td></tr>
<tr><th>Writable</th><td>{{if .StorageWritable}}yes{{else}}<span class="fault">no (console only)</span>{{end}}</td></tr>
</table>

{{if .SelfTest}}<h2>Self-test</h2>
<table>
<tr><th>LED / resistor</th><td>dark mean (min-max) / bright mean (min-max)</td></tr>
{{range .SelfTest}}<tr><th>{{.LED}} / {{.Resistor}}</th><td>{{f1 .Dark.Mean}} ({{f1 .Dark.Min}}-{{f1 .Dark.Max}}) / {{f1 .Bright.Mean}} ({{f1 .Bright.Min}}-{{f1 .Bright.Max}})</td></tr>
{{end}}</table>
{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{stamp .StartTime}}</td></tr>
<tr><th>Backend</th><td>{{.Config.Backend}}</td></tr>
<tr><th>Channels</th><td>{{.Config.Channels}}</td></tr>
<tr><th>Period</th><td>{{.Config.Period}}</td></tr>
<tr><th>Warm-up</th><td>{{.Config.Warmup}}</td></tr>
<tr><th>Samples</th><td>{{.Config.Repeats}} every {{.Config.Interval}}</td></tr>
<tr><th>Program</th><td>{{.Config.Steps}} intensities</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
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
