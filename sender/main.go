package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/Clouded-Sabre/RTP-Go/config"
	"github.com/Clouded-Sabre/RTP-Go/lib"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [-config file] <receiver_ip> <receiver_port> <input_file> <window_size> [local_port]\n", os.Args[0])
	fmt.Fprintln(os.Stderr, "  local_port: Optional. Bind to specific local port (default: auto-assign)")
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the yaml configuration file")
	flag.Parse()
	args := flag.Args()
	if len(args) < 4 {
		usage()
		os.Exit(1)
	}

	var err error
	config.AppConfig, err = config.ReadConfig(*configPath)
	if err != nil {
		log.Fatalln("Configuration file error:", err)
	}

	destIP := args[0]
	destPort, err := strconv.Atoi(args[1])
	if err != nil {
		log.Fatalln("Invalid receiver port:", args[1])
	}
	filePath := args[2]
	windowSize, err := strconv.Atoi(args[3])
	if err != nil || windowSize < 1 {
		log.Fatalln("Invalid window size:", args[3])
	}
	if windowSize > lib.SackBits {
		windowSize = lib.SackBits
	}
	localPort := 0
	if len(args) >= 5 {
		localPort, err = strconv.Atoi(args[4])
		if err != nil {
			log.Fatalln("Invalid local port:", args[4])
		}
	}

	lib.InitPool(config.AppConfig.PayloadPoolSize, config.AppConfig.PoolDebug)

	sender := lib.NewReliableSender(destIP, destPort, filePath, uint16(windowSize), localPort, config.AppConfig)
	os.Exit(sender.Run())
}
