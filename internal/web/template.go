package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/door-dictator/internal/status"
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
	"orUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Door Dictator</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Door Dictator<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>

<h2>State</h2>
<table>
<tr><th>Door</th><td id="door">{{orUnknown (printf "%s" .State.Door)}}</td></tr>
<tr><th>Dictation</th><td id="dictation">{{orUnknown (printf "%s" .State.Dictation)}}{{if .State.Paused}} (paused){{end}}</td></tr>
<tr><th>Recognizer</th><td id="recognizer">{{orUnknown (printf "%s" .State.Recognizer)}}</td></tr>
<tr><th>Actuator</th><td id="actuator">{{orUnknown (printf "%s" .State.Actuator)}}</td></tr>
<tr><th>Session</th><td id="session">{{.State.Session}}</td></tr>
<tr><th>Last transcript</th><td id="transcript">{{.LastTranscript}}</td></tr>
<tr><th>Last discarded</th><td id="discarded">{{.LastDiscarded}}</td></tr>
</table>
{{if .Controls}}
<form method="post" action="/dictation?action=start" style="display:inline"><button>Resume</button></form>
<form method="post" action="/dictation?action=stop" style="display:inline"><button>Pause</button></form>
{{end}}{{if .Simulator}}
<form method="post" action="/door?state=open" style="display:inline"><button>Open door</button></form>
<form method="post" action="/door?state=closed" style="display:inline"><button>Close door</button></form>
{{end}}
<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Door opens</th><td>{{.Counts.DoorOpens}}</td></tr>
<tr><th>Door closes</th><td>{{.Counts.DoorCloses}}</td></tr>
<tr><th>Sessions</th><td>{{.Counts.SessionStarts}}</td></tr>
<tr><th>Auto restarts</th><td>{{.Counts.AutoRestarts}}</td></tr>
<tr><th>Pulses</th><td>{{.Counts.Pulses}}</td></tr>
<tr><th>Discarded</th><td>{{.Counts.Discarded}}</td></tr>
<tr><th>Failures</th><td>{{.Counts.Failures}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Door pin</th><td>{{.Config.DoorPin}}</td></tr>
<tr><th>Actuator pin</th><td>{{.Config.ActuatorPin}}{{if .Config.ActiveLow}} (active low){{end}}</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceMs}}ms</td></tr>
<tr><th>Pulse interval</th><td>{{.Config.PulseIntervalMs}}ms</td></tr>
<tr><th>Pulse width</th><td>{{if eq .Config.PulseWidthMs 0}}hold{{else}}{{.Config.PulseWidthMs}}ms{{end}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
{{if .Config.DryRun}}<tr><th>Mode</th><td>dry run</td></tr>{{end}}
</table>

<p><a href="/index.json">JSON</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  var fields = ["door", "dictation", "recognizer", "actuator", "session"];

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "/ws");
    ws.onopen = function() { setDot("ok", "live"); };
    ws.onclose = function() {
      setDot("err", "offline");
      setTimeout(connect, 5000);
    };
    ws.onmessage = function(m) {
      try {
        var s = JSON.parse(m.data).status;
        fields.forEach(function(f) {
          var el = document.getElementById(f);
          if (el && s[f] !== undefined) { el.textContent = s[f]; }
        });
        if (s.paused) { document.getElementById("dictation").textContent += " (paused)"; }
        document.getElementById("transcript").textContent = s.last_transcript || "";
        document.getElementById("discarded").textContent = s.last_discarded || "";
      } catch (e) {}
    };
  }
  connect();
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot, simulator, controls bool) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime    time.Duration
		Simulator bool
		Controls  bool
	}{
		Snapshot:  snap,
		Uptime:    snap.Uptime(),
		Simulator: simulator,
		Controls:  controls,
	}
	return indexTmpl.Execute(w, data)
}
