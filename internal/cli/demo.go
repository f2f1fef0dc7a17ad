package cli

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/thruflo/reachy-remix/internal/config"
	"github.com/thruflo/reachy-remix/internal/logging"
	"github.com/thruflo/reachy-remix/internal/metrics"
	"github.com/thruflo/reachy-remix/internal/robot"
	"github.com/thruflo/reachy-remix/internal/server"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	robotStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	demoStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("241")).Padding(0, 1)
)

var (
	demoPort      int
	demoNoBrowser bool
	demoNoQR      bool
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the motion builder standalone",
	Long: `Runs the motion builder in the foreground and opens it in a browser.

If no robot can be reached the builder starts in demo mode, where saved
moves can be browsed and played back as a simulation.
Recording needs a connected robot. Press Ctrl+C to stop.`,
	Args: cobra.NoArgs,
	RunE: runDemo,
}

func init() {
	demoCmd.Flags().IntVarP(&demoPort, "port", "p", -1, "first port to try (default from config)")
	demoCmd.Flags().BoolVar(&demoNoBrowser, "no-browser", false, "do not open a browser")
	demoCmd.Flags().BoolVar(&demoNoQR, "no-qr", false, "do not print a QR code of the LAN URL")
	rootCmd.AddCommand(demoCmd)
}

func runDemo(cmd *cobra.Command, args []string) error {
	cfg, base, logger, err := loadSettings()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = demoPort
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	store, err := openLibrary(ctx, cfg, base)
	if err != nil {
		return err
	}
	defer store.Close()

	rb, err := connectOrDemo(ctx, cfg.Robot, logger)
	if err != nil {
		return err
	}
	if rb != nil {
		defer rb.Close()
	}

	fmt.Println(modeBanner(rb))

	reg := metrics.NewRegistry()
	opts := append(appOptions(cfg, base, logger, store, metrics.New(reg), reg),
		server.WithOnLaunch(func(res server.LaunchResult) {
			printLaunchInfo(os.Stdout, res, !demoNoQR)
		}),
	)
	app, err := server.NewApp(rb, nil, opts...)
	if err != nil {
		return fmt.Errorf("failed to build app: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Println("\nStopping...")
		case <-ctx.Done():
		case <-app.Done():
			return
		}
		if err := app.Close(); err != nil {
			logger.Error("Failed to close UI server", "error", err)
		}
	}()

	if _, err := app.Launch(demoLaunchOptions(cfg.Server, !demoNoBrowser)); err != nil {
		app.Close()
		return fmt.Errorf("failed to launch: %w", err)
	}
	return app.Close()
}

// demoLaunchOptions launches blocking, opening a browser unless disabled.
func demoLaunchOptions(cfg config.ServerConfig, inBrowser bool) server.LaunchOptions {
	return server.LaunchOptions{
		ServerName:        cfg.ServerName,
		Port:              cfg.Port,
		PortRange:         cfg.PortRange,
		PreventThreadLock: false,
		ShowError:         cfg.ShowError,
		Quiet:             cfg.Quiet,
		InBrowser:         inBrowser,
	}
}

// modeBanner renders the ROBOT or DEMO banner.
func modeBanner(rb robot.Robot) string {
	title := headerStyle.Render("Reachy Remix")
	if rb == nil {
		return boxStyle.Render(title + "  " + demoStyle.Render(server.ModeDemo) + "\n" +
			dimStyle.Render("No robot connected; playback is simulated."))
	}
	return boxStyle.Render(title + "  " + robotStyle.Render(server.ModeRobot) + "\n" +
		dimStyle.Render("Connected to "+rb.Name()))
}

// printLaunchInfo prints where the UI can be opened, with a QR code for
// phones on the same network.
func printLaunchInfo(w io.Writer, res server.LaunchResult, withQR bool) {
	local, err := server.PublicURL(res.LocalURL)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "%s %s\n", dimStyle.Render("Local:"), local)

	lan := lanURL(res.LocalURL, lanAddress())
	if lan == "" {
		return
	}
	fmt.Fprintf(w, "%s %s\n", dimStyle.Render("Network:"), lan)

	if !withQR {
		return
	}
	qr, err := qrcode.New(lan, qrcode.Medium)
	if err != nil {
		logging.Debug("QR code generation failed", "error", err)
		return
	}
	fmt.Fprintln(w, qr.ToSmallString(false))
}

// lanURL returns the URL other devices on the network should use. It is
// empty when the server is bound to loopback only.
func lanURL(localURL, lanIP string) string {
	u, err := url.Parse(localURL)
	if err != nil {
		return ""
	}
	host := u.Hostname()
	ip := net.ParseIP(host)
	switch {
	case host == "" || (ip != nil && ip.IsUnspecified()):
		if lanIP == "" {
			return ""
		}
		host = lanIP
	case host == "localhost" || (ip != nil && ip.IsLoopback()):
		return ""
	}

	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort(host, port)
	} else {
		u.Host = host
	}
	return u.String()
}

// lanAddress returns the first private IPv4 address of this host.
func lanAddress() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		if ip := ipNet.IP.To4(); ip != nil && !ip.IsLoopback() && ip.IsPrivate() {
			return ip.String()
		}
	}
	return ""
}
