package systemd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/coreos/go-systemd/v22/unit"
	"github.com/stretchr/testify/require"
)

func baseService() *Service {
	return &Service{
		Name:    "backup",
		Timeout: "1h",
		Command: []string{"restic", "backup", "/home"},
	}
}

func TestRenderMinimal(t *testing.T) {
	out, err := baseService().Render()
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(out, "[Unit]\nDescription=ptimeout managed service\n"))
	require.Contains(t, out, "Documentation=man:ptimeout(1)\n")
	require.Contains(t, out, "\n[Service]\nType=simple\n")
	require.Contains(t, out, "ExecStart=/usr/local/bin/ptimeout --background 1h -- restic backup /home\n")
	require.Contains(t, out, "\n[Install]\nWantedBy=default.target\n")
	require.NotContains(t, out, "User=")
	require.NotContains(t, out, "After=")
}

func TestRenderAllOptions(t *testing.T) {
	s := baseService()
	s.Description = "Nightly backup"
	s.After = "network-online.target"
	s.Retries = 2
	s.Verbose = true
	s.CountDirection = "down"
	s.Config = "/etc/ptimeout.yaml"
	s.Environment = []string{"RESTIC_REPOSITORY=/srv/restic", "GREETING=hello world"}
	s.WorkingDirectory = "/srv"
	s.User = "backup"
	s.Group = "backup"
	s.Restart = "on-failure"
	s.RestartSec = 30
	s.MemoryLimit = "512M"
	s.CPUQuota = "50%"
	s.StdoutLog = "/var/log/backup.out"
	s.StderrLog = "/var/log/backup.err"

	out, err := s.Render()
	require.NoError(t, err)

	opts, err := unit.Deserialize(strings.NewReader(out))
	require.NoError(t, err)

	got := map[string][]string{}
	for _, o := range opts {
		key := o.Section + "." + o.Name
		got[key] = append(got[key], o.Value)
	}

	require.Equal(t, []string{"Nightly backup"}, got["Unit.Description"])
	require.Equal(t, []string{"network-online.target"}, got["Unit.After"])
	require.Equal(t, []string{"RESTIC_REPOSITORY=/srv/restic", `"GREETING=hello world"`}, got["Service.Environment"])
	require.Equal(t, []string{"/usr/local/bin/ptimeout --background -r 2 -v -d down --config /etc/ptimeout.yaml 1h -- restic backup /home"}, got["Service.ExecStart"])
	require.Equal(t, []string{"/srv"}, got["Service.WorkingDirectory"])
	require.Equal(t, []string{"backup"}, got["Service.User"])
	require.Equal(t, []string{"backup"}, got["Service.Group"])
	require.Equal(t, []string{"on-failure"}, got["Service.Restart"])
	require.Equal(t, []string{"30"}, got["Service.RestartSec"])
	require.Equal(t, []string{"512M"}, got["Service.MemoryMax"])
	require.Equal(t, []string{"50%"}, got["Service.CPUQuota"])
	require.Equal(t, []string{"append:/var/log/backup.out"}, got["Service.StandardOutput"])
	require.Equal(t, []string{"append:/var/log/backup.err"}, got["Service.StandardError"])
}

func TestExecStartQuoting(t *testing.T) {
	s := baseService()
	s.Executable = "/opt/bin/ptimeout"
	s.Command = []string{"sh", "-c", `echo "$HOME" 100%`}

	line := execLine(s.ExecStart())
	require.Equal(t, `/opt/bin/ptimeout --background 1h -- sh -c "echo \"$$HOME\" 100%%"`, line)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Service)
		errMsg string
	}{
		{"missing name", func(s *Service) { s.Name = "" }, "service name is required"},
		{"slash in name", func(s *Service) { s.Name = "a/b" }, "invalid service name"},
		{"bad timeout", func(s *Service) { s.Timeout = "10x" }, "invalid"},
		{"negative retries", func(s *Service) { s.Retries = -1 }, "non-negative"},
		{"bad direction", func(s *Service) { s.CountDirection = "left" }, "count direction"},
		{"no command", func(s *Service) { s.Command = nil }, "command is required"},
		{"bad restart", func(s *Service) { s.Restart = "sometimes" }, "invalid restart policy"},
		{"bad environment", func(s *Service) { s.Environment = []string{"NOVALUE"} }, "KEY=VALUE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := baseService()
			tt.modify(s)
			err := s.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestUnitName(t *testing.T) {
	s := baseService()
	require.Equal(t, "backup.service", s.UnitName())
	s.Name = "backup.service"
	require.Equal(t, "backup.service", s.UnitName())
}

func TestUserUnitDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/cfg")
	dir, err := UserUnitDir()
	require.NoError(t, err)
	require.Equal(t, "/cfg/systemd/user", dir)

	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", "/home/tester")
	dir, err = UserUnitDir()
	require.NoError(t, err)
	require.Equal(t, "/home/tester/.config/systemd/user", dir)
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "backup.service")
	require.NoError(t, WriteFile(path, "[Unit]\n"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "[Unit]\n", string(data))
}
