package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sample = `
database:
  host: "localhost"
  port: 5432
  username: "u"
  password: "p"
  name: "db"
kafka:
  host: "localhost"
  port: 9092
  export_completed_topic_name: "export.completed"
redis:
  host: "localhost"
  port: 6379
transfer:
  mode: "sftp"
  host: "sftp.yaml"
  port: 2222
  username: "yaml-user"
  remote_dir: "/in"
intake:
  station_id: "4202"
  timezone: "Europe/Berlin"
  include_drop_location: true
  http_addr: ":8080"
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "cfg.yaml", sample)

	cfg, err := LoadConfig(p, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, "export.completed", cfg.Kafka.ExportCompletedTopicName)
	require.Equal(t, 6379, cfg.Redis.Port)
	require.Equal(t, "sftp.yaml", cfg.Transfer.Host)
	require.Equal(t, 2222, cfg.Transfer.Port)
	require.Equal(t, "4202", cfg.Intake.StationID)
	require.True(t, cfg.Intake.IncludeDropLocation)
	require.True(t, cfg.Intake.UniformPartnerRequired())
	require.Nil(t, cfg.Intake.RescanCooldownMs)
}

func TestLoadConfig_ExplicitFalseAndZero(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "cfg.yaml", `
intake:
  require_uniform_partner: false
  rescan_cooldown_ms: 0
`)
	cfg, err := LoadConfig(p, filepath.Join(dir, "none.env"))
	require.NoError(t, err)
	require.False(t, cfg.Intake.UniformPartnerRequired())
	require.NotNil(t, cfg.Intake.RescanCooldownMs)
	require.Equal(t, 0, *cfg.Intake.RescanCooldownMs)
}

func TestLoadConfig_DotEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "cfg.yaml", sample)
	env := writeFile(t, dir, ".env", "SFTP_HOST=sftp.env\nSFTP_PORT=22\nSFTP_USERNAME=env-user\nSFTP_PASSWORD=secret\n")

	// переменная окружения важнее файла
	t.Setenv("SFTP_USERNAME", "process-user")

	cfg, err := LoadConfig(p, env)
	require.NoError(t, err)
	require.Equal(t, "sftp.env", cfg.Transfer.Host)
	require.Equal(t, 22, cfg.Transfer.Port)
	require.Equal(t, "process-user", cfg.Transfer.Username)
	require.Equal(t, "secret", cfg.Transfer.Password)
}

func TestLoadConfig_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadConfig(filepath.Join(dir, "nope.yaml"))
	require.Error(t, err)

	bad := writeFile(t, dir, "bad.yaml", "database: [")
	_, err = LoadConfig(bad)
	require.Error(t, err)

	ok := writeFile(t, dir, "ok.yaml", sample)
	env := writeFile(t, dir, "port.env", "SFTP_PORT=abc\n")
	_, err = LoadConfig(ok, env)
	require.Error(t, err)
}
