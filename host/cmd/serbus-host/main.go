package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"serbus/host/master"
	"serbus/host/remote"
	"serbus/host/serial"
	"serbus/probe"
	"serbus/sim"
)

var (
	device  = flag.String("device", "/dev/ttyACM0", "Serial device path")
	baud    = flag.Int("baud", 250000, "Baud rate (ignored for USB CDC)")
	simMode = flag.Bool("sim", false, "Run against a built-in simulated probe")
	simCfg  = flag.String("config", "", "Simulator config file (JSON, implies -sim)")
	verbose = flag.Bool("verbose", false, "Enable verbose output")
	timeout = flag.Duration("timeout", time.Second, "Per-command timeout")
)

func main() {
	flag.Parse()

	client, err := connect()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()
	client.SetTimeout(*timeout)

	g, err := client.Geometry()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to read probe geometry: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Probe v%s: %d bit addresses, %d bit data, auto increment %v\n",
		g.Version, g.Config.AddressWidth-1, g.Config.DataWidth, g.Config.AutoIncrement)

	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := parts[0]
		args := parts[1:]

		start := time.Now()
		switch cmd {
		case "quit", "exit", "q":
			return

		case "help", "?":
			printHelp()

		case "peek":
			if err := doPeek(client, args); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}

		case "poke":
			if err := doPoke(client, args); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}

		case "burst":
			if err := doBurst(client, args); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}

		case "geometry":
			g, err := client.Geometry()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				break
			}
			fmt.Printf("address_width=%d data_width=%d auto_increment=%v version=%s\n",
				g.Config.AddressWidth, g.Config.DataWidth, g.Config.AutoIncrement, g.Version)

		case "faults":
			n, err := client.Faults()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				break
			}
			fmt.Printf("faults=%d\n", n)

		default:
			fmt.Printf("Unknown command: %s (type 'help' for available commands)\n", cmd)
		}
		if *verbose {
			fmt.Printf("(%.1fms)\n", float64(time.Since(start).Microseconds())/1000)
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
}

// connect attaches to real hardware or spins up an in-process simulator.
func connect() (*remote.Client, error) {
	if !*simMode && *simCfg == "" {
		fmt.Printf("Connecting to probe on %s...\n", *device)
		port, err := serial.Open(&serial.Config{Device: *device, Baud: *baud, ReadTimeout: 100})
		if err != nil {
			return nil, err
		}
		return remote.NewClient(port), nil
	}

	cfg := sim.DefaultConfig()
	if *simCfg != "" {
		var err error
		cfg, err = sim.LoadConfig(*simCfg)
		if err != nil {
			return nil, err
		}
	}
	s, err := sim.New(cfg)
	if err != nil {
		return nil, err
	}
	m, err := master.NewMaster(s, s.Bridge().Config())
	if err != nil {
		return nil, err
	}

	hostPort, devPort := serial.Pipe()
	p := probe.NewProbe(devPort, m)
	p.SetFaultSource(s.Faults)
	go p.Run()

	fmt.Println("Running against simulated probe")
	return remote.NewClient(hostPort), nil
}

func doPeek(client *remote.Client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: peek ADDR")
	}
	addr, err := parseNum(args[0])
	if err != nil {
		return err
	}
	v, err := client.Peek(addr)
	if err != nil {
		return err
	}
	fmt.Printf("[%#x] = %#x\n", addr, v)
	return nil
}

func doPoke(client *remote.Client, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: poke ADDR VALUE")
	}
	addr, err := parseNum(args[0])
	if err != nil {
		return err
	}
	v, err := parseNum(args[1])
	if err != nil {
		return err
	}
	if err := client.Poke(addr, v); err != nil {
		return err
	}
	fmt.Printf("[%#x] <= %#x\n", addr, v)
	return nil
}

func doBurst(client *remote.Client, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: burst ADDR VALUE...")
	}
	addr, err := parseNum(args[0])
	if err != nil {
		return err
	}
	words := make([]uint64, 0, len(args)-1)
	for _, a := range args[1:] {
		v, err := parseNum(a)
		if err != nil {
			return err
		}
		words = append(words, v)
	}
	if err := client.PokeBurst(addr, words); err != nil {
		return err
	}
	fmt.Printf("[%#x..%#x] <= %d words\n", addr, addr+uint64(len(words))-1, len(words))
	return nil
}

func parseNum(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("bad number %q", s)
	}
	return v, nil
}

func printHelp() {
	fmt.Println("\nAvailable commands:")
	fmt.Println("  peek ADDR          - Read one word")
	fmt.Println("  poke ADDR VALUE    - Write one word")
	fmt.Println("  burst ADDR V...    - Write consecutive words")
	fmt.Println("  geometry           - Show the probe's bridge geometry")
	fmt.Println("  faults             - Show the deadline fault counter")
	fmt.Println("  help               - Show this help message")
	fmt.Println("  quit/exit/q        - Exit the program")
	fmt.Println()
}
