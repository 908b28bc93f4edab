// Package router is the channel-independent dispatch pipeline: it gates
// a canonical inbound message on account state and entitlements, runs
// the right AI operation, splits the answer to the channel's size limit
// and sends it, recording conversation turns only after delivery.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"chatgw/internal/ai"
	"chatgw/internal/compose"
	"chatgw/internal/domain"
	"chatgw/internal/entitlement"
	"chatgw/internal/observability"
	"chatgw/internal/providers"
	"chatgw/internal/store"
)

// Keyword prefixes recognized on text messages.
const (
	keywordImage = "dalle "
	keywordSpeak = "speak "
)

// RenewalTimeFormat renders the next quota window for quota denials.
const RenewalTimeFormat = "Monday, 02/01/2006 at 03:04 PM"

const hourglassEmoji = "⏳"

type Users interface {
	UserByPhone(ctx context.Context, phone string) (store.User, bool, error)
}

type Entitlements interface {
	CheckAndConsume(ctx context.Context, user store.User, cap domain.Capability) (entitlement.Decision, error)
}

type Conversations interface {
	LoadContext(userKey, prompt string) ([]domain.Turn, error)
	Record(userKey, role, content string) error
}

type AI interface {
	CompleteChat(ctx context.Context, turns []domain.Turn) (string, error)
	GenerateImage(ctx context.Context, prompt string) (string, error)
	EditImage(ctx context.Context, imagePath, prompt string) (string, error)
	VaryImage(ctx context.Context, imagePath string) (string, error)
	Synthesize(ctx context.Context, text, voice string) (string, error)
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

type Router struct {
	Users Users
	Ent   Entitlements
	Convo Conversations
	AI    AI

	Split     compose.Splitter
	CharLimit int

	// PublicBaseURL prefixes generated voice note links.
	PublicBaseURL string

	Log *slog.Logger

	// Transcode converts synthesized speech into a WhatsApp voice note.
	// Defaults to ai.ToVoiceNote; tests stub it.
	Transcode func(ctx context.Context, src string) (string, error)
}

// Dispatch runs the full pipeline for one inbound message. All expected
// failures converge to a canned reply; the returned error is reserved
// for delivery failures the transport may want to surface.
func (r *Router) Dispatch(ctx context.Context, msg domain.Message, sender providers.Sender) error {
	observability.WebhookMessages.WithLabelValues(msg.Provider, string(msg.Kind)).Inc()

	user, ok, err := r.lookup(ctx, msg, sender)
	if err != nil || !ok {
		return err
	}

	if sender.Features().ReadReceipts && msg.ID != "" {
		if err := sender.MarkRead(ctx, msg.ID); err != nil {
			r.Log.Warn("mark read failed", "provider", msg.Provider, "err", err)
		}
	}

	prompt, cap := classify(msg)

	dec, err := r.Ent.CheckAndConsume(ctx, user, cap)
	if err != nil || !dec.Allowed {
		return r.sendDenial(ctx, msg, sender, dec, err)
	}

	switch cap {
	case domain.CapImage:
		err = r.handleImage(ctx, user, msg, prompt, sender)
	case domain.CapAudio:
		err = r.handleAudio(ctx, user, msg, prompt, sender)
	default:
		err = r.handleChat(ctx, user, msg, prompt, sender, false)
	}
	if err != nil {
		observability.Dispatches.WithLabelValues(string(cap), "error").Inc()
		return r.sendFailure(ctx, msg, sender, err)
	}
	observability.Dispatches.WithLabelValues(string(cap), "ok").Inc()
	return nil
}

// lookup resolves the sender to a verified account, answering the
// appropriate onboarding nudge when it cannot.
func (r *Router) lookup(ctx context.Context, msg domain.Message, sender providers.Sender) (store.User, bool, error) {
	user, found, err := r.Users.UserByPhone(ctx, msg.From)
	if err != nil {
		r.Log.Error("user lookup failed", "err", err)
		return store.User{}, false, sender.SendText(ctx, msg.From, domain.ReplyApology)
	}
	if !found {
		return store.User{}, false, sender.SendText(ctx, msg.From, domain.ReplySignup)
	}
	if !user.PhoneVerified {
		return store.User{}, false, sender.SendText(ctx, msg.From, domain.ReplyVerifyPhone)
	}
	if !user.EmailVerified {
		return store.User{}, false, sender.SendText(ctx, msg.From, domain.ReplyVerifyEmail)
	}
	return user, true, nil
}

// classify picks the capability and the effective prompt. Keyword
// prefixes on text beat everything; media kinds speak for themselves.
func classify(msg domain.Message) (string, domain.Capability) {
	switch msg.Kind {
	case domain.KindAudio:
		return "", domain.CapAudio
	case domain.KindImage:
		return strings.TrimSpace(msg.Body), domain.CapImage
	case domain.KindInteractive:
		// A button or list reply carries the chosen option's title as
		// the prompt. Keywords never apply to canned choices.
		return strings.TrimSpace(msg.Body), domain.CapText
	}

	body := strings.TrimSpace(msg.Body)
	lower := strings.ToLower(body)
	switch {
	case strings.HasPrefix(lower, keywordImage):
		return strings.TrimSpace(body[len(keywordImage):]), domain.CapImage
	case strings.HasPrefix(lower, keywordSpeak):
		return strings.TrimSpace(body[len(keywordSpeak):]), domain.CapAudio
	}
	return body, domain.CapText
}

func (r *Router) sendDenial(ctx context.Context, msg domain.Message, sender providers.Sender, dec entitlement.Decision, err error) error {
	switch {
	case errors.Is(err, domain.ErrQuotaExceeded):
		text := fmt.Sprintf(
			"You have exhausted your free weekly messages. Your quota renews on %s.",
			dec.RenewAt.Format(RenewalTimeFormat))
		return sender.SendText(ctx, msg.From, text)
	case errors.Is(err, domain.ErrSubscriptionExpired):
		return sender.SendText(ctx, msg.From, domain.ReplyExpired)
	case errors.Is(err, domain.ErrConfiguration):
		return sender.SendText(ctx, msg.From, domain.ReplySettingsProblem)
	case err != nil:
		r.Log.Error("entitlement check failed", "err", err)
		return sender.SendText(ctx, msg.From, domain.ReplyApology)
	}
	return sender.SendText(ctx, msg.From, domain.ReplyNoAccess)
}

// sendFailure maps pipeline errors to the matching canned reply.
func (r *Router) sendFailure(ctx context.Context, msg domain.Message, sender providers.Sender, err error) error {
	r.Log.Error("dispatch failed",
		"provider", msg.Provider, "kind", string(msg.Kind), "err", err)

	reply := domain.ReplyApology
	switch {
	case errors.Is(err, domain.ErrBackendTimeout):
		reply = domain.ReplyTakingLong
	case errors.Is(err, domain.ErrResponseTooLong):
		reply = domain.ReplyTooLong
	case errors.Is(err, domain.ErrTranscriptionFailed):
		reply = domain.ReplyTranscribeFail
	case errors.Is(err, domain.ErrMediaDownload):
		reply = domain.ReplyMediaFail
	}
	return sender.SendText(ctx, msg.From, reply)
}

// handleChat completes the conversation and sends the answer, split to
// the channel limit. Turns are recorded only after every part is out so
// a failed send never leaves a ghost assistant turn behind.
func (r *Router) handleChat(ctx context.Context, user store.User, msg domain.Message, prompt string, sender providers.Sender, spoken bool) error {
	turns, err := r.Convo.LoadContext(msg.From, prompt)
	if err != nil {
		return err
	}

	answer, err := r.AI.CompleteChat(ctx, turns)
	if err != nil {
		return err
	}

	if spoken || user.VoiceResponse {
		if err := r.sendSpoken(ctx, user, msg, answer, sender); err != nil {
			return err
		}
	} else {
		if err := r.sendParts(ctx, msg, answer, sender); err != nil {
			return err
		}
	}
	return r.Convo.Record(msg.From, domain.RoleAssistant, answer)
}

func (r *Router) sendParts(ctx context.Context, msg domain.Message, answer string, sender providers.Sender) error {
	parts, err := r.Split.Split(answer, r.CharLimit)
	if err != nil {
		return err
	}
	for i, part := range parts {
		if i == 0 && msg.IsReply() && sender.Features().Threading {
			if err := sender.Reply(ctx, msg.From, part, msg.ReplyToID); err != nil {
				return err
			}
			continue
		}
		if err := sender.SendText(ctx, msg.From, part); err != nil {
			return err
		}
	}
	return nil
}

// sendSpoken renders the answer as a voice note. The synthesized file
// stays on disk until the public link has been fetched; the media
// endpoint removes it after serving.
func (r *Router) sendSpoken(ctx context.Context, user store.User, msg domain.Message, answer string, sender providers.Sender) error {
	raw, err := r.AI.Synthesize(ctx, answer, user.AIVoice)
	if err != nil {
		return err
	}
	transcode := r.Transcode
	if transcode == nil {
		transcode = ai.ToVoiceNote
	}
	note, err := transcode(ctx, raw)
	if err != nil {
		os.Remove(raw)
		return err
	}
	url := strings.TrimRight(r.PublicBaseURL, "/") + "/voice-note/" + filepath.Base(note)
	return sender.SendMedia(ctx, msg.From, url, "", true)
}

func (r *Router) handleImage(ctx context.Context, user store.User, msg domain.Message, prompt string, sender providers.Sender) error {
	var url string
	var caption string
	var err error

	switch {
	case msg.Kind == domain.KindImage:
		// Inbound photo: an empty caption or the word "variation" asks
		// for a variation, anything else is an edit instruction.
		if prompt == "" || strings.EqualFold(prompt, "variation") {
			url, err = r.AI.VaryImage(ctx, msg.MediaPath)
		} else {
			url, err = r.AI.EditImage(ctx, msg.MediaPath, prompt)
			caption = prompt
		}
	default:
		url, err = r.AI.GenerateImage(ctx, prompt)
		caption = "Here's " + prompt
	}
	if err != nil {
		return err
	}
	return sender.SendMedia(ctx, msg.From, url, caption, false)
}

// handleAudio covers both a voice note (transcribe, then chat) and the
// "speak" keyword (chat, then speak the answer).
func (r *Router) handleAudio(ctx context.Context, user store.User, msg domain.Message, prompt string, sender providers.Sender) error {
	if msg.Kind != domain.KindAudio {
		return r.handleChat(ctx, user, msg, prompt, sender, true)
	}

	if sender.Features().Reactions && msg.ID != "" {
		if err := sender.React(ctx, msg.From, msg.ID, hourglassEmoji); err != nil {
			r.Log.Warn("reaction failed", "provider", msg.Provider, "err", err)
		}
	}

	transcript, err := r.AI.Transcribe(ctx, msg.MediaPath)
	if err != nil {
		return err
	}
	return r.handleChat(ctx, user, msg, transcript, sender, user.VoiceResponse)
}

// PrecheckAudio gates a voice note before any transcription spend.
// The sender must resolve to a verified account on a tier that grants
// audio at all; onboarding nudges and the no-access reply are sent
// here. The weekly counter is only consumed later, when the deferred
// reply actually runs.
func (r *Router) PrecheckAudio(ctx context.Context, msg domain.Message, sender providers.Sender) (bool, error) {
	user, ok, err := r.lookup(ctx, msg, sender)
	if err != nil || !ok {
		return false, err
	}
	if !user.Plan.Allows(domain.CapAudio) {
		return false, sender.SendText(ctx, msg.From, domain.ReplyNoAccess)
	}
	return true, nil
}

// TranscribeForFallback runs only the transcription half of audio
// handling. Channels whose webhook deadline is too tight to finish the
// whole pipeline park the transcript and answer on the retry delivery.
func (r *Router) TranscribeForFallback(ctx context.Context, msg domain.Message) (string, error) {
	start := time.Now()
	transcript, err := r.AI.Transcribe(ctx, msg.MediaPath)
	if err != nil {
		return "", err
	}
	r.Log.Info("audio transcribed for deferred reply",
		"provider", msg.Provider, "msg_id", msg.ID, "took", time.Since(start))
	return transcript, nil
}

// RespondFromTranscript finishes a deferred audio exchange: the user is
// re-gated (the retry may arrive after a plan change) and the transcript
// flows through the normal chat path.
func (r *Router) RespondFromTranscript(ctx context.Context, msg domain.Message, transcript string, sender providers.Sender) error {
	user, ok, err := r.lookup(ctx, msg, sender)
	if err != nil || !ok {
		return err
	}

	dec, err := r.Ent.CheckAndConsume(ctx, user, domain.CapAudio)
	if err != nil || !dec.Allowed {
		return r.sendDenial(ctx, msg, sender, dec, err)
	}

	if err := r.handleChat(ctx, user, msg, transcript, sender, user.VoiceResponse); err != nil {
		observability.Dispatches.WithLabelValues(string(domain.CapAudio), "error").Inc()
		return r.sendFailure(ctx, msg, sender, err)
	}
	observability.Dispatches.WithLabelValues(string(domain.CapAudio), "ok").Inc()
	return nil
}
