// Package service installs the mineq daemon as a systemd service.
package service

import (
	"bytes"
	"text/template"
)

var unitTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description=MyMinEq tracking motor calibration daemon
After=network.target

[Service]
Type=simple
ExecStart={{ .ExePath }} daemon --config {{ .ConfigPath }} --daemon-socket {{ .SocketPath }}{{ if .AllowNonRootAccess }} --always-allow-non-root-access{{ end }}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=multi-user.target
`))

// UnitOptions fills the unit template.
type UnitOptions struct {
	ExePath            string
	ConfigPath         string
	SocketPath         string
	AllowNonRootAccess bool
}

// RenderUnit returns the systemd unit for o.
func RenderUnit(o UnitOptions) (string, error) {
	var buf bytes.Buffer
	if err := unitTemplate.Execute(&buf, o); err != nil {
		return "", err
	}
	return buf.String(), nil
}
