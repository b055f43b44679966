// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/bitmark-inc/exitwithstatus"
	"github.com/bitmark-inc/getoptions"
	"github.com/bitmark-inc/logger"
	"github.com/julienschmidt/httprouter"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bitmark-inc/compilerproxy/cache"
	"github.com/bitmark-inc/compilerproxy/compilercache"
	"github.com/bitmark-inc/compilerproxy/fault"
	"github.com/bitmark-inc/compilerproxy/transport"
	"github.com/bitmark-inc/compilerproxy/util"
	"github.com/bitmark-inc/compilerproxy/version"
)

const (
	defaultCacheFilename = "compiler-info.cache"
	defaultStatusAddress = "127.0.0.1:8090"
)

// main program
func main() {
	// ensure exit handler is first
	defer exitwithstatus.Handler()

	flags := []getoptions.Option{
		{Long: "help", HasArg: getoptions.NO_ARGUMENT, Short: 'h'},
		{Long: "verbose", HasArg: getoptions.NO_ARGUMENT, Short: 'v'},
		{Long: "quiet", HasArg: getoptions.NO_ARGUMENT, Short: 'q'},
		{Long: "version", HasArg: getoptions.NO_ARGUMENT, Short: 'V'},
		{Long: "cache-dir", HasArg: getoptions.REQUIRED_ARGUMENT, Short: 'd'},
		{Long: "server", HasArg: getoptions.REQUIRED_ARGUMENT, Short: 's'},
		{Long: "status-address", HasArg: getoptions.REQUIRED_ARGUMENT, Short: 'a'},
	}

	program, options, arguments, err := getoptions.GetOS(flags)
	if nil != err {
		exitwithstatus.Message("%s: getoptions error: %s", program, err)
	}

	if len(options["version"]) > 0 {
		fmt.Printf("%s\n", version.Version)
		return
	}

	if len(options["help"]) > 0 {
		exitwithstatus.Message("usage: %s [--help] [--verbose] [--quiet] [--version] --cache-dir=DIR --server=HOST:PORT [--status-address=IP:PORT] [status]", program)
	}

	// this enquiry runs against an already-running instance and does
	// not require the full configuration
	if len(arguments) > 0 && "status" == arguments[0] {
		statusAddress := defaultStatusAddress
		if len(options["status-address"]) > 0 {
			statusAddress = options["status-address"][0]
		}
		statusAddress, err = util.CanonicalIPandPort(statusAddress)
		if nil != err {
			exitwithstatus.Message("%s: invalid status-address: %s", program, err)
		}
		var reply statusReply
		if err := util.FetchJSON(new(http.Client), "http://"+statusAddress+"/status", &reply); nil != err {
			exitwithstatus.Message("%s: status fetch failed: %s", program, err)
		}
		fmt.Printf("version:          %s\n", reply.Version)
		fmt.Printf("healthy:          %t\n", reply.Healthy)
		fmt.Printf("healthy recently: %t\n", reply.HealthyRecently)
		fmt.Printf("ramp-up:          %d%%\n", reply.RampUpPercent)
		fmt.Printf("cache entries:    %d\n", reply.CacheEntries)
		return
	}

	if 1 != len(options["cache-dir"]) {
		exitwithstatus.Message("%s: exactly one cache-dir option is required, %d were detected", program, len(options["cache-dir"]))
	}
	cacheDir := options["cache-dir"][0]

	if 1 != len(options["server"]) {
		exitwithstatus.Message("%s: exactly one server option is required, %d were detected", program, len(options["server"]))
	}
	destHost, destPortStr, err := net.SplitHostPort(options["server"][0])
	if nil != err {
		exitwithstatus.Message("%s: invalid server %q: %s", program, options["server"][0], err)
	}
	destPort, err := strconv.Atoi(destPortStr)
	if nil != err {
		exitwithstatus.Message("%s: invalid server port %q: %s", program, destPortStr, err)
	}

	statusAddress := defaultStatusAddress
	if len(options["status-address"]) > 0 {
		statusAddress = options["status-address"][0]
	}
	statusAddress, err = util.CanonicalIPandPort(statusAddress)
	if nil != err {
		exitwithstatus.Message("%s: invalid status-address: %s", program, err)
	}

	verbose := len(options["verbose"]) > 0
	quiet := len(options["quiet"]) > 0

	// start logging
	logLevel := "error"
	if verbose {
		logLevel = "info"
	}
	logging := logger.Configuration{
		Directory: cacheDir,
		File:      "compilerproxy.log",
		Size:      1048576,
		Count:     10,
		Console:   verbose,
		Levels: map[string]string{
			logger.DefaultTag: logLevel,
		},
	}
	if err = os.MkdirAll(cacheDir, 0755); nil != err {
		exitwithstatus.Message("%s: cannot create cache dir %q: %s", program, cacheDir, err)
	}
	if err = logger.Initialise(logging); nil != err {
		exitwithstatus.Message("%s: logger setup failed with error: %s", program, err)
	}
	defer logger.Finalise()

	if err = fault.Initialise(); nil != err {
		exitwithstatus.Message("%s: fault setup failed with error: %s", program, err)
	}
	defer fault.Finalise()

	log := logger.New("main")
	defer log.Info("finished")
	log.Info("starting…")
	log.Infof("version: %s", version.Version)

	if !quiet {
		banner(program)
	}

	// ------------------
	// start of real main
	// ------------------

	if err = cache.Initialise(); nil != err {
		log.Criticalf("cache initialise error: %s", err)
		exitwithstatus.Message("cache initialise error: %s", err)
	}
	defer cache.Finalise()

	log.Info("initialise compiler info cache")
	err = compilercache.Init(compilercache.Config{
		CacheDir:      filepath.Clean(cacheDir),
		CacheFilename: defaultCacheFilename,
	})
	if nil != err {
		log.Criticalf("compilercache initialise error: %s", err)
		exitwithstatus.Message("compilercache initialise error: %s", err)
	}
	defer compilercache.Quit()

	if err = compilercache.LoadIfEnabled(); nil != err {
		log.Criticalf("compilercache load error: %s", err)
		exitwithstatus.Message("compilercache load error: %s", err)
	}
	log.Infof("loaded %d cached compiler entries (%d bytes)",
		compilercache.Count(), compilercache.LoadedSize())

	log.Info("initialise transport")
	client, err := transport.NewClient(
		transport.Options{
			DestHostName: destHost,
			DestPort:     destPort,
		},
		func() { util.LogWarn(log, util.CoRed, "remote executor unreachable") },
		func() { util.LogInfo(log, util.CoGreen, "remote executor recovered") },
	)
	if nil != err {
		log.Criticalf("transport initialise error: %s", err)
		exitwithstatus.Message("transport initialise error: %s", err)
	}
	defer client.Shutdown()

	// local read-only status page
	router := httprouter.New()
	router.GET("/status", statusHandler(client))
	router.Handler(http.MethodGet, "/metrics", promhttp.Handler())
	go func() {
		log.Warnf("status listener on: %s", statusAddress)
		err := http.ListenAndServe(statusAddress, router)
		log.Errorf("status listener error: %s", err)
	}()

	util.LogInfo(log, util.CoGreen, "all subsystems ready")

	// wait for CTRL-C before shutting down to allow manual testing
	if !quiet {
		fmt.Printf("\n\nWaiting for CTRL-C (SIGINT) or 'kill <pid>' (SIGTERM)…")
	}

	// turn Signals into channel messages
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	sig := <-ch
	log.Infof("received signal: %v", sig)
	if !quiet {
		fmt.Printf("\nreceived signal: %v\n", sig)
		fmt.Printf("\nshutting down…\n")
	}

	log.Info("shutting down…")
}

// banner prints a colourized start-up line when stdout is a terminal.
func banner(program string) {
	out := colorable.NewColorableStdout()
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		fmt.Fprintf(out, "%s%s %s%s\n", util.CoGreen, program, version.Version, util.CoReset)
		return
	}
	fmt.Fprintf(out, "%s %s\n", program, version.Version)
}
