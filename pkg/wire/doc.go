// Package wire implements the text protocol spoken on the observer channel.
//
// The hub sends three message kinds:
//
//	INIT <json array of {id,name,status}>   full roster on connect
//	NEWDEV <id> <name> <status>             device created
//	NEWSTATUS <id> <status>                 device status changed
//
// Observers send one command:
//
//	ADDDEV <name>                           create a device
//
// The name in ADDDEV is the whole remainder of the line after the first
// space and may itself contain spaces. Status values use the literal tokens
// GOOD, ANGRY, DYSCIPLINED and OFFLINE.
package wire
