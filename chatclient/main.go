package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/Clouded-Sabre/RTP-Go/chat"
	"github.com/Clouded-Sabre/RTP-Go/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the yaml configuration file")
	addr := flag.String("addr", "", "Server address host:port (default: 127.0.0.1:<chatPort>)")
	nick := flag.String("nick", "anonymous", "Nickname")
	flag.Parse()

	var err error
	config.AppConfig, err = config.ReadConfig(*configPath)
	if err != nil {
		log.Fatalln("Configuration file error:", err)
	}

	serverAddr := *addr
	if serverAddr == "" {
		serverAddr = fmt.Sprintf("127.0.0.1:%d", config.AppConfig.ChatPort)
	}

	client, err := chat.Dial(serverAddr, *nick)
	if err != nil {
		log.Fatalln("Connect error:", err)
	}
	defer client.Close()
	log.Printf("Connected to %s as %s\n", serverAddr, *nick)

	// one worker prints incoming frames while the main loop reads stdin
	go func() {
		for {
			msgType, payload, err := client.Receive()
			if err != nil {
				log.Println("Connection closed by server")
				os.Exit(0)
			}
			switch msgType {
			case chat.MsgBroadcast:
				from, text := chat.SplitBroadcast(payload)
				fmt.Printf("<%s> %s\n", from, text)
			case chat.MsgUserJoin:
				fmt.Printf("* %s joined\n", string(payload))
			case chat.MsgUserLeave:
				fmt.Printf("* %s left\n", string(payload))
			}
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := client.Send(line); err != nil {
			log.Fatalln("Send error:", err)
		}
	}
}
