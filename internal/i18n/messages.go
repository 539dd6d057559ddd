package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Message keys. English text is the key itself.
const (
	MsgSessionNotFound   = "session not found"
	MsgRuleNotFound      = "rule not found"
	MsgVersionNotFound   = "version not found"
	MsgMissingTarget     = "rule has no target"
	MsgInvalidRule       = "rule contains a value that cannot be rendered"
	MsgInvalidBody       = "invalid request body"
	MsgInvalidParameter  = "invalid parameter %s"
	MsgUnknownType       = "unknown firewall type"
	MsgUploadTooLarge    = "upload too large"
	MsgParseFailed       = "configuration could not be parsed"
	MsgInternal          = "internal error"
	MsgRateLimited       = "too many new sessions, try again later"
	MsgDiffSummary       = "%d lines added, %d removed"
	MsgNoDifferences     = "no differences"
	MsgSkippedLines      = "%d lines skipped"
	MsgVersionSaved      = "saved version %d of %s"
)

func init() {
	de := language.German
	set := func(key, msg string) {
		_ = message.SetString(de, key, msg)
	}
	set(MsgSessionNotFound, "Sitzung nicht gefunden")
	set(MsgRuleNotFound, "Regel nicht gefunden")
	set(MsgVersionNotFound, "Version nicht gefunden")
	set(MsgMissingTarget, "Regel hat kein Ziel")
	set(MsgInvalidRule, "Regel enthält einen Wert, der nicht ausgegeben werden kann")
	set(MsgInvalidBody, "ungültiger Anfrageinhalt")
	set(MsgInvalidParameter, "ungültiger Parameter %s")
	set(MsgUnknownType, "unbekannter Firewall-Typ")
	set(MsgUploadTooLarge, "Upload zu groß")
	set(MsgParseFailed, "Konfiguration konnte nicht gelesen werden")
	set(MsgInternal, "interner Fehler")
	set(MsgRateLimited, "zu viele neue Sitzungen, bitte später erneut versuchen")
	set(MsgDiffSummary, "%d Zeilen hinzugefügt, %d entfernt")
	set(MsgNoDifferences, "keine Unterschiede")
	set(MsgSkippedLines, "%d Zeilen übersprungen")
	set(MsgVersionSaved, "Version %d von %s gespeichert")
}
