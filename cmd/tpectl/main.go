// Command tpectl is a small operator CLI fronting the driver's public
// operations (spec §6), the way lncli fronts lnd: test, pay, cancel, logs,
// clear-logs, list-ports.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/table"
	"github.com/urfave/cli"

	"github.com/Kadem9/caissefacile-tpe"
	"github.com/Kadem9/caissefacile-tpe/tpecfg"
)

// logLineTimestampLayout matches tpelog.Buffer's "[YYYY-MM-DD HH:MM:SS.mmm]"
// prefix (spec §6).
const logLineTimestampLayout = "2006-01-02 15:04:05.000"

func main() {
	app := cli.NewApp()
	app.Name = "tpectl"
	app.Usage = "operate a payment-terminal driver from the command line"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "configfile",
			Usage: "path to an INI config file of driver tuning knobs",
		},
	}
	app.Commands = []cli.Command{
		testCommand,
		payCommand,
		cancelCommand,
		logsCommand,
		clearLogsCommand,
		listPortsCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "tpectl:", err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) tpecfg.Config {
	path := c.GlobalString("configfile")
	if path == "" {
		return tpecfg.Default()
	}
	cfg, err := tpecfg.Load(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tpectl: loading config:", err)
		return tpecfg.Default()
	}
	return cfg
}

func newManager(c *cli.Context) *tpe.Manager {
	cfg := loadConfig(c)
	backend := btclog.NewBackend(os.Stderr)
	tpe.SetupLoggers(backend, tpe.LevelFromConfig(cfg))

	m := tpe.NewManager(nil)
	m.Start()
	return m
}

var testCommand = cli.Command{
	Name:      "test",
	Usage:     "test the connection to a terminal",
	ArgsUsage: "<descriptor> [baud]",
	Action: func(c *cli.Context) error {
		if c.NArg() < 1 {
			return cli.NewExitError("descriptor is required", 1)
		}
		baud := 9600
		if c.NArg() >= 2 {
			b, err := strconv.Atoi(c.Args().Get(1))
			if err != nil {
				return cli.NewExitError(fmt.Sprintf("invalid baud: %v", err), 1)
			}
			baud = b
		}

		m := newManager(c)
		defer m.Stop()

		res, err := m.TestTpeConnection(c.Args().Get(0), baud)
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		fmt.Printf("connected=%v message=%q raw=%q\n", res.Connected, res.Message, res.RawData)
		return nil
	},
}

var payCommand = cli.Command{
	Name:      "pay",
	Usage:     "send a payment to a terminal",
	ArgsUsage: "<descriptor> <baud> <pos> <protocol-version> <amount-cents>",
	Action: func(c *cli.Context) error {
		if c.NArg() < 5 {
			return cli.NewExitError("descriptor, baud, pos, protocol-version, amount-cents are all required", 1)
		}
		baud, err := strconv.Atoi(c.Args().Get(1))
		if err != nil {
			return cli.NewExitError(fmt.Sprintf("invalid baud: %v", err), 1)
		}
		protoVersion, err := strconv.ParseUint(c.Args().Get(3), 10, 8)
		if err != nil {
			return cli.NewExitError(fmt.Sprintf("invalid protocol-version: %v", err), 1)
		}
		amount, err := strconv.ParseUint(c.Args().Get(4), 10, 32)
		if err != nil {
			return cli.NewExitError(fmt.Sprintf("invalid amount-cents: %v", err), 1)
		}

		m := newManager(c)
		defer m.Stop()

		out, err := m.SendTpePayment(c.Args().Get(0), baud, c.Args().Get(2), uint8(protoVersion), uint32(amount))
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		fmt.Printf("success=%v result_code=%s authorization=%q error=%q\n",
			out.Success, out.ResultCode, out.AuthorizationNumber, out.ErrorMessage)
		return nil
	},
}

var cancelCommand = cli.Command{
	Name:  "cancel",
	Usage: "set the cancellation flag of a driver started in this process (a transaction running in another process is not affected)",
	Action: func(c *cli.Context) error {
		m := newManager(c)
		defer m.Stop()
		fmt.Println(m.CancelTpeTransaction())
		return nil
	},
}

var logsCommand = cli.Command{
	Name:  "logs",
	Usage: "print the driver's diagnostic log, each line annotated with its age",
	Action: func(c *cli.Context) error {
		m := newManager(c)
		defer m.Stop()

		for _, line := range strings.Split(m.GetTpeLogs(), "\n") {
			fmt.Println(withAge(line))
		}
		return nil
	},
}

// withAge appends a humanized "(3s ago)" suffix to a log line that starts
// with tpelog's "[YYYY-MM-DD HH:MM:SS.mmm]" timestamp; lines that don't
// (the header/separator lines Dump() also emits) pass through unchanged.
func withAge(line string) string {
	if len(line) < 2 || line[0] != '[' {
		return line
	}
	end := strings.IndexByte(line, ']')
	if end < 0 {
		return line
	}
	ts, err := time.Parse(logLineTimestampLayout, line[1:end])
	if err != nil {
		return line
	}
	return fmt.Sprintf("%s (%s)", line, humanize.Time(ts))
}

var clearLogsCommand = cli.Command{
	Name:  "clear-logs",
	Usage: "clear the driver's diagnostic log",
	Action: func(c *cli.Context) error {
		m := newManager(c)
		defer m.Stop()
		fmt.Println(m.ClearTpeLogs())
		return nil
	},
}

var listPortsCommand = cli.Command{
	Name:  "list-ports",
	Usage: "list candidate serial ports",
	Action: func(c *cli.Context) error {
		m := newManager(c)
		defer m.Stop()

		ports, err := m.ListSerialPorts()
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Path", "Type", "Manufacturer", "Product"})
		for _, p := range ports {
			t.AppendRow(table.Row{p.Path, p.Type.String(), p.Manufacturer, p.Product})
		}
		t.Render()
		return nil
	},
}
