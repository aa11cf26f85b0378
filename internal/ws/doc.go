// Package ws streams the latest analysis summary to WebSocket clients.
// Clients get the current summary on connect and a fresh one after every
// pipeline refresh.
package ws
