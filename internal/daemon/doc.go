// Package daemon coordinates the long-running vconv process.
//
// It wires configuration, the conversion scheduler, the tiered history store,
// and the display-handle registry into a single lifecycle with flock-based
// locking to prevent multiple instances. The daemon serves the HTTP API,
// runs cron-scheduled housekeeping (handle sweeps, log and staging
// retention), and reports dependency health.
//
// Keep orchestration logic here: conversion and persistence rules live in
// their own packages while the daemon focuses on startup, shutdown, and high
// level coordination.
package daemon
