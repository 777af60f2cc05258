package message

import (
	"regexp"
	"strconv"
	"strings"
)

// Class is the role an inbound message plays for source lookup.
type Class int

// Message classes.
const (
	Unrelated Class = iota
	ImageAttachment
	SourceRequestReply
)

func (c Class) String() string {
	switch c {
	case ImageAttachment:
		return "image_attachment"
	case SourceRequestReply:
		return "source_request_reply"
	default:
		return "unrelated"
	}
}

// Classification is the outcome of inspecting one message text.
type Classification struct {
	Class    Class
	ImageURL string // set for ImageAttachment
	ReplyID  int64  // set for SourceRequestReply
}

// Both the CQ-code form ("[CQ:image,file=x,url=...]") and the plain form
// ("[image url=...]") are recognized. CQ parameter values never contain raw
// commas or brackets; those are escaped.
var (
	replyMarkerRe = regexp.MustCompile(`^\s*\[(?:CQ:reply,|reply )([^\]]*)\]`)
	imageMarkerRe = regexp.MustCompile(`\[(?:CQ:image,|image )([^\]]*)\]`)
	anyMarkerRe   = regexp.MustCompile(`\[(?:CQ:[a-z_]+(?:,[^\]]*)?|(?:image|reply|at|face|record|video) [^\]]*)\]`)
	idParamRe     = regexp.MustCompile(`(?:^|[,\s])id=(-?\d+)(?:$|[,\s])`)
	urlParamRe    = regexp.MustCompile(`(?:^|[,\s])url=([^,\s]+)`)
)

var cqUnescaper = strings.NewReplacer("&#44;", ",", "&#91;", "[", "&#93;", "]", "&amp;", "&")

// Classifier recognizes image attachments and "find source" replies.
type Classifier struct {
	triggers []string
}

// NewClassifier creates a classifier for the given trigger phrases.
// Matching is case-insensitive; empty phrases are ignored.
func NewClassifier(triggers []string) *Classifier {
	c := &Classifier{}
	for _, t := range triggers {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			c.triggers = append(c.triggers, t)
		}
	}
	return c
}

// Classify inspects a message text.
func (c *Classifier) Classify(text string) Classification {
	if id, ok := c.sourceRequest(text); ok {
		return Classification{Class: SourceRequestReply, ReplyID: id}
	}
	if url, ok := imageURL(text); ok {
		return Classification{Class: ImageAttachment, ImageURL: url}
	}
	return Classification{Class: Unrelated}
}

func (c *Classifier) sourceRequest(text string) (int64, bool) {
	m := replyMarkerRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	if !c.hasTrigger(text) {
		return 0, false
	}
	idm := idParamRe.FindStringSubmatch(m[1])
	if idm == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(idm[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// hasTrigger looks for a trigger phrase in the human-written part of the
// message, so phrases inside marker parameters (URLs, file names) never count.
func (c *Classifier) hasTrigger(text string) bool {
	plain := strings.ToLower(anyMarkerRe.ReplaceAllString(text, " "))
	for _, t := range c.triggers {
		if strings.Contains(plain, t) {
			return true
		}
	}
	return false
}

func imageURL(text string) (string, bool) {
	m := imageMarkerRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	um := urlParamRe.FindStringSubmatch(m[1])
	if um == nil {
		return "", false
	}
	url := cqUnescaper.Replace(um[1])
	if url == "" {
		return "", false
	}
	return url, true
}
