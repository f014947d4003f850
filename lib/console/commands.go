package console

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-i2p/go-echochat/lib/server"
	"github.com/go-i2p/logger"
)

// broadcastTarget is the send target addressing every client.
const broadcastTarget = "0"

// command is one console command. run returns true when the console should stop.
type command struct {
	name    string
	matches func(line string) bool
	run     func(c *Console, line string) bool
}

// commands are tried in order; the first match wins.
var commands = []command{
	{
		name:    "sessions",
		matches: func(line string) bool { return strings.HasPrefix(line, "sessio") },
		run:     (*Console).listSessions,
	},
	{
		name:    "send",
		matches: func(line string) bool { return line == "send" || strings.HasPrefix(line, "send ") },
		run:     (*Console).send,
	},
	{
		name:    "exit",
		matches: func(line string) bool { return strings.HasPrefix(line, "ex") },
		run:     (*Console).exit,
	},
}

// dispatch runs the command on line. Returns true if the console should stop.
func (c *Console) dispatch(line string) bool {
	if line == "" {
		return false
	}

	for _, cmd := range commands {
		if cmd.matches(line) {
			log.WithFields(logger.Fields{
				"at":      "console.(*Console).dispatch",
				"command": cmd.name,
			}).Debug("console_command")
			return cmd.run(c, line)
		}
	}

	c.errorf("Unknown command: %s", line)
	return false
}

func (c *Console) listSessions(string) bool {
	sessions := c.srv.Sessions()

	c.println(c.paint.paint(headerStyle, "[Connected Clients]:"))
	if len(sessions) == 0 {
		c.infof("  no clients connected")
		return false
	}
	for _, s := range sessions {
		c.println("Client " + strconv.FormatUint(s.ID(), 10) + ": " + c.paint.paint(addressStyle, s.RemoteAddr()))
	}
	return false
}

// send handles "send <target> <message>". The message is everything after
// the target, spaces included.
func (c *Console) send(line string) bool {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 3 {
		c.errorf("Invalid command format. Usage: send <id|0> <message>")
		return false
	}
	target, message := parts[1], parts[2]

	if target == broadcastTarget {
		delivered, failures := c.srv.Broadcast(message)
		for _, f := range failures {
			c.errorf("Error sending to client %d: %v", f.ClientID, f.Err)
		}
		c.infof("Broadcast delivered to %d client(s)", delivered)
		return false
	}

	id, err := strconv.ParseUint(target, 10, 64)
	if err != nil {
		c.errorf("Invalid client id: %s", target)
		return false
	}

	if err := c.srv.SendTo(id, message); err != nil {
		if errors.Is(err, server.ErrClientNotFound) {
			c.errorf("Client %d not found", id)
		} else {
			c.errorf("Error sending to client %d: %v", id, err)
		}
	}
	return false
}

func (c *Console) exit(string) bool {
	c.println(c.paint.paint(headerStyle, "Shutting down the server..."))
	c.srv.Shutdown()
	return true
}
