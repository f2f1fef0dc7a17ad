package config

import "time"

// Wait modes for the stop signal.
const (
	WaitModeBlock = "block"
	WaitModePoll  = "poll"
)

// ServerConfig controls how the UI server is launched and stopped.
type ServerConfig struct {
	ServerName   string        `yaml:"server_name"`
	Port         int           `yaml:"port"`
	PortRange    int           `yaml:"port_range"`
	PollInterval time.Duration `yaml:"poll_interval"`
	CloseTimeout time.Duration `yaml:"close_timeout"`
	WaitMode     string        `yaml:"wait_mode"`
	Monitor      bool          `yaml:"monitor"`
	ShowError    bool          `yaml:"show_error"`
	Quiet        bool          `yaml:"quiet"`
}

// RobotConfig describes the serial connection to the robot.
// An empty Port means scan all serial ports.
type RobotConfig struct {
	Port            string        `yaml:"port"`
	BaudRate        int           `yaml:"baud_rate"`
	Timeout         time.Duration `yaml:"timeout"`
	ConnectAttempts int           `yaml:"connect_attempts"`
	// Calibration is an optional JSON calibration file. Empty uses the
	// full servo range for every motor.
	Calibration string `yaml:"calibration,omitempty"`
}

// LibraryConfig locates the saved move library.
type LibraryConfig struct {
	Path string `yaml:"path"`
}

// DiscoveryConfig controls LAN advertisement.
type DiscoveryConfig struct {
	MDNS bool `yaml:"mdns"`
}

// LogConfig controls logging verbosity.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Config represents the .reachy-remix/config.yaml file.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Robot     RobotConfig     `yaml:"robot"`
	Library   LibraryConfig   `yaml:"library"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Log       LogConfig       `yaml:"log"`
}
