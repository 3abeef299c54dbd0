// Package acconnect is a client for the cloud service behind networked
// air-conditioning units.
//
// A Client logs in, resolves the account session, negotiates a hub
// connection and keeps one websocket Channel open. Subscribe seeds the
// device Registry from the account snapshot; from then on confirmed actions
// and room-temperature heartbeats update it in place. Commands issued
// through a Device are encoded by EncodeCommand and sent on the channel,
// and take effect locally only once the service confirms them.
package acconnect
