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
	fmt.Fprintf(os.Stderr, "Usage: %s [-config file] <listen_port> <output_file> [window_size]\n", os.Args[0])
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the yaml configuration file")
	flag.Parse()
	args := flag.Args()
	if len(args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	config.AppConfig, err = config.ReadConfig(*configPath)
	if err != nil {
		log.Fatalln("Configuration file error:", err)
	}

	listenPort, err := strconv.Atoi(args[0])
	if err != nil {
		log.Fatalln("Invalid listen port:", args[0])
	}
	outputPath := args[1]
	windowSize := config.AppConfig.WindowSize
	if len(args) >= 3 {
		windowSize, err = strconv.Atoi(args[2])
		if err != nil || windowSize < 1 {
			log.Fatalln("Invalid window size:", args[2])
		}
	}
	if windowSize > lib.SackBits {
		windowSize = lib.SackBits
	}

	lib.InitPool(config.AppConfig.PayloadPoolSize, config.AppConfig.PoolDebug)

	receiver, err := lib.NewReliableReceiver(listenPort, outputPath, uint16(windowSize), config.AppConfig)
	if err != nil {
		log.Fatalln("Listen error:", err)
	}
	os.Exit(receiver.Run())
}
