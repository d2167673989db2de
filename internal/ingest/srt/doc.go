// Package srt feeds the ingest registry from SRT (Secure Reliable
// Transport) connections: Server accepts publishers in listener mode and
// Caller pulls streams from remote listeners. Each connection carries one
// MPEG-TS stream that is played as ingest://<key>.
package srt
