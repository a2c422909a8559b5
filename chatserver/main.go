package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/Clouded-Sabre/RTP-Go/chat"
	"github.com/Clouded-Sabre/RTP-Go/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the yaml configuration file")
	port := flag.Int("port", 0, "Listen port (default: chatPort from config)")
	flag.Parse()

	var err error
	config.AppConfig, err = config.ReadConfig(*configPath)
	if err != nil {
		log.Fatalln("Configuration file error:", err)
	}

	listenPort := *port
	if listenPort == 0 {
		listenPort = config.AppConfig.ChatPort
	}

	srv, err := chat.NewServer(fmt.Sprintf(":%d", listenPort))
	if err != nil {
		log.Fatalln("Listen error:", err)
	}
	defer srv.Close()

	if err := srv.Serve(); err != nil {
		log.Fatalln("Serve error:", err)
	}
}
