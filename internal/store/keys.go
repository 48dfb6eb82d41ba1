package store

import (
	"fmt"
	"strings"
	"time"
)

// Single-table layout of the wide-column backend. One partition per chat;
// the sort key multiplexes three record kinds:
//
//	PK  USER#{chatId}
//	SK  CONV#{conversationId}#INFO              conversation marker
//	SK  CONV#{conversationId}#STATUS            closure record
//	SK  CONV#{conversationId}#MSG#{timestamp}   message
//
// Conversation ids are ULIDs and timestamps are fixed width, so plain
// byte order of sort keys is creation order.
const (
	partitionPrefix    = "USER#"
	conversationPrefix = "CONV#"
	infoSuffix         = "#INFO"
	statusSuffix       = "#STATUS"
	messageInfix       = "#MSG#"

	// legacyMessagePrefix is the pre-segmentation layout (SK MSG#{timestamp})
	// where the conversation id only lived in the record body.
	legacyMessagePrefix = "MSG#"
)

// Record type attribute values.
const (
	recordMarker  = "conversation_marker"
	recordStatus  = "conversation_status"
	recordMessage = "message"
)

type recordKind int

const (
	kindUnknown recordKind = iota
	kindInfo
	kindStatus
	kindMessage
)

func partitionKey(chatID int64) string {
	return fmt.Sprintf("%s%d", partitionPrefix, chatID)
}

func conversationInfoKey(conversationID string) string {
	return conversationPrefix + conversationID + infoSuffix
}

func conversationStatusKey(conversationID string) string {
	return conversationPrefix + conversationID + statusSuffix
}

func conversationMessagePrefix(conversationID string) string {
	return conversationPrefix + conversationID + messageInfix
}

func messageKey(conversationID string, ts time.Time) string {
	return conversationMessagePrefix(conversationID) + formatTimestamp(ts)
}

// kindOf classifies a sort key under the CONV# namespace.
func kindOf(sk string) recordKind {
	if !strings.HasPrefix(sk, conversationPrefix) {
		return kindUnknown
	}
	rest := sk[len(conversationPrefix):]
	switch {
	case strings.Contains(rest, messageInfix):
		return kindMessage
	case strings.HasSuffix(rest, statusSuffix):
		return kindStatus
	case strings.HasSuffix(rest, infoSuffix):
		return kindInfo
	}
	return kindUnknown
}
