package watch

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"sweetexp/internal/logging"
)

// UEventSignal ticks on kernel uevents, optionally limited to one subsystem.
type UEventSignal struct {
	conn      *netlink.UEventConn
	subsystem string
	t         *ticker
	logger    *slog.Logger

	quit      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// WatchUEvents connects to the kernel uevent netlink socket.
func WatchUEvents(subsystem string, logger *slog.Logger) (*UEventSignal, error) {
	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.KernelEvent); err != nil {
		return nil, fmt.Errorf("connect netlink: %w", err)
	}
	s := &UEventSignal{
		conn:      conn,
		subsystem: strings.TrimSpace(subsystem),
		t:         newTicker(0),
		logger:    logging.NewComponentLogger(logger, "watch"),
		quit:      make(chan struct{}),
	}
	s.wg.Add(1)
	go s.loop()
	return s, nil
}

func (s *UEventSignal) matcher() netlink.Matcher {
	if s.subsystem == "" {
		return nil
	}
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Env: map[string]string{"SUBSYSTEM": s.subsystem},
	})
	return rules
}

func (s *UEventSignal) loop() {
	defer s.wg.Done()
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := s.conn.Monitor(queue, errs, s.matcher())

	for {
		select {
		case <-s.quit:
			close(monitorQuit)
			return
		case ev := <-queue:
			s.logger.Debug("uevent",
				logging.String("action", string(ev.Action)),
				logging.String("kobj", ev.KObj))
			s.t.trigger()
		case err := <-errs:
			logging.WarnWithContext(s.logger, "netlink monitor error", "uevent_monitor_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "extra evaluations may be missed"))
		}
	}
}

func (s *UEventSignal) C() <-chan struct{} { return s.t.ch }

// Close stops monitoring and closes the netlink socket.
func (s *UEventSignal) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.quit)
		s.wg.Wait()
		err = s.conn.Close()
		s.t.stop()
	})
	return err
}
