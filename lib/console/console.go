package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/go-i2p/go-echochat/lib/notify"
	"github.com/go-i2p/go-echochat/lib/server"
	"github.com/go-i2p/go-echochat/lib/session"
	"github.com/go-i2p/go-echochat/lib/shutdown"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

var log = logger.GetGoI2PLogger()

const (
	defaultPollInterval  = 20 * time.Millisecond
	defaultMaxLineLength = 1 << 20
)

// Server is the part of the server the console drives.
type Server interface {
	Sessions() []*session.Session
	SendTo(id uint64, message string) error
	Broadcast(message string) (delivered int, failures []server.SendFailure)
	Shutdown()
}

// Options configures a Console.
type Options struct {
	// PollInterval is how often queued notifications are flushed.
	PollInterval time.Duration

	// Prompt is printed whenever the console is ready for a command.
	Prompt string

	// Styled enables lipgloss styling of the output.
	Styled bool

	// MaxLineLength is the longest command line accepted, in bytes. Longer
	// lines are discarded and reported. Default: 1 MiB
	MaxLineLength int
}

// Console reads operator commands and prints server notifications.
type Console struct {
	in     io.Reader
	out    io.Writer
	srv    Server
	events *notify.Queue
	stop   *shutdown.Signal
	opts   Options
	paint  painter

	outMu sync.Mutex
}

// New creates a console reading commands from in and writing to out.
func New(in io.Reader, out io.Writer, srv Server, events *notify.Queue, stop *shutdown.Signal, opts Options) (*Console, error) {
	if in == nil || out == nil {
		return nil, oops.Errorf("console: input and output are required")
	}
	if srv == nil || events == nil || stop == nil {
		return nil, oops.Errorf("console: server, notification queue and shutdown signal are required")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.MaxLineLength <= 0 {
		opts.MaxLineLength = defaultMaxLineLength
	}

	return &Console{
		in:     in,
		out:    out,
		srv:    srv,
		events: events,
		stop:   stop,
		opts:   opts,
		paint:  painter{enabled: opts.Styled},
	}, nil
}

// Run processes commands until exit, end of input, or until the shutdown
// signal is set elsewhere. It returns the input error, if reading failed for
// a reason other than end of input.
func (c *Console) Run() error {
	lines := make(chan inputLine)
	readErr := make(chan error, 1)
	quit := make(chan struct{})
	defer close(quit)

	go c.readLines(lines, readErr, quit)

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	c.showPrompt()
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				err := <-readErr
				log.WithFields(logger.Fields{
					"at":    "console.(*Console).Run",
					"error": err,
				}).Info("console_input_closed")
				c.println("")
				c.println(c.paint.paint(headerStyle, "Shutting down the server..."))
				c.srv.Shutdown()
				c.Flush()
				return err
			}
			if line.tooLong {
				c.errorf("Line too long (limit %d bytes), ignored", c.opts.MaxLineLength)
				c.showPrompt()
				continue
			}
			if c.dispatch(line.text) {
				c.Flush()
				return nil
			}
			c.showPrompt()
		case <-ticker.C:
			c.flushWithPrompt()
		case <-c.events.Ready():
			c.flushWithPrompt()
		case <-c.stop.Done():
			log.WithField("at", "console.(*Console).Run").Debug("console_observed_shutdown")
			c.Flush()
			return nil
		}
	}
}

// inputLine is one line of operator input without its terminator.
type inputLine struct {
	text    string
	tooLong bool
}

// readLines feeds complete input lines to the console loop. The channel is
// closed at end of input, after the read error (nil at EOF) was sent.
func (c *Console) readLines(lines chan<- inputLine, readErr chan<- error, quit <-chan struct{}) {
	defer close(lines)

	r := bufio.NewReader(c.in)
	for {
		line, err := readLine(r, c.opts.MaxLineLength)
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
			}
			readErr <- err
			return
		}
		select {
		case lines <- line:
		case <-quit:
			readErr <- nil
			return
		}
	}
}

// readLine reads up to the next newline. A line longer than limit is consumed
// in full but only reported as too long. A final line without a newline is
// returned before the end of input.
func readLine(r *bufio.Reader, limit int) (inputLine, error) {
	var buf []byte
	tooLong := false
	for {
		chunk, more, err := r.ReadLine()
		if err != nil {
			if len(buf) > 0 || tooLong {
				return inputLine{text: strings.TrimRight(string(buf), "\r"), tooLong: tooLong}, nil
			}
			return inputLine{}, err
		}
		if !tooLong {
			if len(buf)+len(chunk) > limit {
				tooLong = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if !more {
			return inputLine{text: strings.TrimRight(string(buf), "\r"), tooLong: tooLong}, nil
		}
	}
}

// Flush prints every queued notification without a trailing prompt.
func (c *Console) Flush() {
	c.renderNotifications(false)
}

func (c *Console) flushWithPrompt() {
	c.renderNotifications(true)
}

func (c *Console) renderNotifications(withPrompt bool) {
	pending := c.events.Drain()
	if len(pending) == 0 {
		return
	}

	var b strings.Builder
	for _, n := range pending {
		b.WriteString("\r\n")
		b.WriteString(c.paint.notification(n))
	}
	b.WriteString("\r\n")
	if withPrompt {
		b.WriteString(c.paint.paint(promptStyle, c.opts.Prompt))
	}
	c.write(b.String())
}

func (c *Console) showPrompt() {
	c.write(c.paint.paint(promptStyle, c.opts.Prompt))
}

func (c *Console) println(text string) {
	c.write(text + "\n")
}

func (c *Console) errorf(format string, args ...interface{}) {
	c.println(c.paint.paint(errorStyle, fmt.Sprintf(format, args...)))
}

func (c *Console) infof(format string, args ...interface{}) {
	c.println(c.paint.paint(infoStyle, fmt.Sprintf(format, args...)))
}

func (c *Console) write(s string) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	if _, err := io.WriteString(c.out, s); err != nil {
		log.WithError(err).Warn("console_write_failed")
	}
}
