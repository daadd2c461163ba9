package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"memcheetah/process"
	"memcheetah/resultset"
	"memcheetah/session"
	"memcheetah/value"
)

var errExit = errors.New("exit requested")

type command struct {
	aliases []string
	args    string
	helpMsg string
	fn      func(c *console, ctx context.Context, args []string) error
}

func commands() []command {
	return []command{
		{aliases: []string{"help", "h"}, helpMsg: "Show this list.", fn: (*console).help},
		{aliases: []string{"search", "new"}, args: "<type> <value>", helpMsg: "Open a new search tab. Types: byte short int int64 float double string string:N unknown aob.", fn: (*console).search},
		{aliases: []string{"rescan"}, args: "<value>", helpMsg: "Search again in the current tab, dropping its history and frozen values.", fn: (*console).rescan},
		{aliases: []string{"refine", "next", "r"}, args: "<op> [value]", helpMsg: "Keep hits that compare true. Ops: = + - != same.", fn: (*console).refine},
		{aliases: []string{"undo", "u"}, helpMsg: "Undo the last refinement.", fn: (*console).undo},
		{aliases: []string{"list", "ls"}, args: "[n]", helpMsg: "Print the first n hits (default 20).", fn: (*console).list},
		{aliases: []string{"set"}, args: "<addr> <value>", helpMsg: "Write a value once.", fn: (*console).set},
		{aliases: []string{"freeze", "f"}, args: "<addr> <value>", helpMsg: "Keep rewriting a value.", fn: (*console).freeze},
		{aliases: []string{"unfreeze", "uf"}, args: "<addr>", helpMsg: "Stop rewriting a value.", fn: (*console).unfreeze},
		{aliases: []string{"peek", "x"}, args: "<addr> [size]", helpMsg: "Hex dump memory around an address.", fn: (*console).peek},
		{aliases: []string{"ptr"}, args: "<base> [offset...]", helpMsg: "Follow a pointer path and dump the final address.", fn: (*console).ptr},
		{aliases: []string{"stats"}, helpMsg: "Summarise the current tab.", fn: (*console).stats},
		{aliases: []string{"tabs"}, helpMsg: "List open tabs.", fn: (*console).tabs},
		{aliases: []string{"tab"}, args: "<n>", helpMsg: "Switch to tab n.", fn: (*console).tab},
		{aliases: []string{"close"}, args: "[n]", helpMsg: "Close tab n, or the current one.", fn: (*console).closeTab},
		{aliases: []string{"quit", "exit", "q"}, helpMsg: "Leave the console.", fn: func(*console, context.Context, []string) error { return errExit }},
	}
}

func (c *console) help(_ context.Context, _ []string) error {
	for _, cmd := range c.cmds {
		usage := strings.Join(cmd.aliases, ", ")
		if cmd.args != "" {
			usage += " " + cmd.args
		}
		fmt.Fprintf(c.out, "  %-28s %s\n", usage, cmd.helpMsg)
	}
	return nil
}

func (c *console) currentTab() (*resultset.ResultSet, error) {
	if c.current == 0 {
		return nil, errors.New("no search tab, start one with 'search'")
	}
	return c.sess.Tab(c.current)
}

func parseHandle(s string) (session.Handle, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid tab %q", s)
	}
	return session.Handle(n), nil
}

func (c *console) search(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: search <type> <value>")
	}
	typ, err := value.ParseType(args[0], c.cfg.UnknownMinWidth, c.cfg.UnknownMaxWidth)
	if err != nil {
		return err
	}

	h, result, err := c.sess.StartSearch(ctx, typ, strings.Join(args[1:], " "), c.progress())
	if err != nil {
		return err
	}
	c.current = h
	fmt.Fprintf(c.out, "tab #%d: ", h)
	printSearchResult(c.out, result)
	return c.list(ctx, nil)
}

func (c *console) rescan(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: rescan <value>")
	}
	if _, err := c.currentTab(); err != nil {
		return err
	}
	result, err := c.sess.Rescan(ctx, c.current, strings.Join(args, " "), c.progress())
	if err != nil {
		return err
	}
	printSearchResult(c.out, result)
	return c.list(ctx, nil)
}

func (c *console) refine(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: refine <op> [value]")
	}
	op, err := value.ParseOp(args[0])
	if err != nil {
		return err
	}
	if op == value.EqualTo && len(args) < 2 {
		return resultset.ErrNeedsValue
	}

	report, err := c.sess.Refine(ctx, c.current, op, strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, report.String())
	return c.list(ctx, nil)
}

func (c *console) undo(ctx context.Context, _ []string) error {
	if err := c.sess.Undo(c.current); err != nil {
		return err
	}
	return c.stats(ctx, nil)
}

func (c *console) list(_ context.Context, args []string) error {
	tab, err := c.currentTab()
	if err != nil {
		return err
	}
	limit := 20
	if len(args) > 0 {
		if limit, err = strconv.Atoi(args[0]); err != nil {
			return fmt.Errorf("invalid count %q", args[0])
		}
	}
	printHits(c.out, tab.Hits(), limit)
	return nil
}

func (c *console) set(_ context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: set <addr> <value>")
	}
	addr, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	return c.sess.SetValue(c.current, addr, strings.Join(args[1:], " "))
}

func (c *console) freeze(_ context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: freeze <addr> <value>")
	}
	addr, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	return c.sess.Freeze(c.current, addr, strings.Join(args[1:], " "))
}

func (c *console) unfreeze(_ context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: unfreeze <addr>")
	}
	addr, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	return c.sess.Unfreeze(c.current, addr)
}

func (c *console) peek(_ context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: peek <addr> [size]")
	}
	addr, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	size := 128
	if len(args) > 1 {
		if size, err = strconv.Atoi(args[1]); err != nil {
			return fmt.Errorf("invalid size %q", args[1])
		}
	}

	// highlight the whole value when addr is a hit of the current tab
	mark := 1
	if tab, err := c.currentTab(); err == nil {
		for _, h := range tab.Hits() {
			if h.Address == addr {
				mark = max(1, len(h.Raw))
				break
			}
		}
	}
	return peek(c.out, c.sess.Process(), addr, 32, size, mark)
}

func (c *console) ptr(_ context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: ptr <base> [offset...]")
	}
	base, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	offsets := make([]process.ProcessMemorySize, len(args)-1)
	for i, arg := range args[1:] {
		off, err := parseAddress(arg)
		if err != nil {
			return err
		}
		offsets[i] = process.ProcessMemorySize(off)
	}

	addr, err := process.ResolvePath(c.sess.Process(), process.ProcessMemoryAddress(base), offsets...)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "0x%x\n", uint64(addr))
	return peek(c.out, c.sess.Process(), uint64(addr), 0, 16, 1)
}

func (c *console) stats(_ context.Context, _ []string) error {
	tab, err := c.currentTab()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "tab #%d: ", c.current)
	printStats(c.out, tab.Stats())
	return nil
}

func (c *console) tabs(_ context.Context, _ []string) error {
	for _, h := range c.sess.Tabs() {
		tab, err := c.sess.Tab(h)
		if err != nil {
			continue
		}
		marker := " "
		if h == c.current {
			marker = "*"
		}
		fmt.Fprintf(c.out, "%s #%d ", marker, h)
		printStats(c.out, tab.Stats())
	}
	return nil
}

func (c *console) tab(_ context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: tab <n>")
	}
	h, err := parseHandle(args[0])
	if err != nil {
		return err
	}
	if _, err := c.sess.Tab(h); err != nil {
		return err
	}
	c.current = h
	return nil
}

func (c *console) closeTab(_ context.Context, args []string) error {
	h := c.current
	if len(args) > 0 {
		var err error
		if h, err = parseHandle(args[0]); err != nil {
			return err
		}
	}
	if err := c.sess.CloseTab(h); err != nil {
		return err
	}
	if h == c.current {
		c.current = 0
		if open := c.sess.Tabs(); len(open) > 0 {
			c.current = open[len(open)-1]
		}
	}
	return nil
}
