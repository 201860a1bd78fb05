package httpserver

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/twilio/twilio-go/twiml"

	"github.com/Createyouracccount/last-mike/internal/agent"
	twiliosig "github.com/Createyouracccount/last-mike/internal/middleware"
)

const gatherPath = "/twilio/gather"

// terminalCallStatus lists CallStatus values after which the call is gone.
var terminalCallStatus = map[string]bool{
	"completed": true,
	"busy":      true,
	"failed":    true,
	"no-answer": true,
	"canceled":  true,
}

func (s *Server) say(msg string) *twiml.VoiceSay {
	return &twiml.VoiceSay{Message: msg, Language: s.cfg.TwilioLanguage, Voice: s.cfg.TwilioVoice}
}

// listen speaks msg while gathering the caller's next utterance. When the
// caller stays silent Twilio falls through to the redirect, which posts to
// the gather action without a SpeechResult.
func (s *Server) listen(c echo.Context, msg string) error {
	gather := &twiml.VoiceGather{
		Input:         "speech",
		Language:      s.cfg.TwilioLanguage,
		Action:        gatherPath,
		Method:        "POST",
		SpeechTimeout: "auto",
		InnerElements: []twiml.Element{s.say(msg)},
	}
	redirect := &twiml.VoiceRedirect{Url: gatherPath, Method: "POST"}
	return s.writeTwiML(c, gather, redirect)
}

func (s *Server) hangup(c echo.Context, msg string) error {
	return s.writeTwiML(c, s.say(msg), &twiml.VoiceHangup{})
}

func (s *Server) writeTwiML(c echo.Context, elements ...twiml.Element) error {
	response, err := twiml.Voice(elements)
	if err != nil {
		return c.String(http.StatusInternalServerError, "failed to build TwiML")
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/xml")
	return c.String(http.StatusOK, response)
}

func (s *Server) twilioVoice(c echo.Context) error {
	params, ok := twiliosig.TwilioParams(c)
	if !ok {
		return c.String(http.StatusInternalServerError, "Failed to get Twilio parameters")
	}
	callSid := params["CallSid"]
	if callSid == "" {
		return c.String(http.StatusBadRequest, "missing CallSid")
	}
	log.Printf("[%s] incoming call from %s", callSid, params["From"])

	res, err := s.service.Start(c.Request().Context(), callSid)
	if err != nil {
		log.Printf("[%s] start failed: %v", callSid, err)
		return s.hangup(c, agent.MsgTemporaryProblem)
	}
	return s.listen(c, res.Message)
}

func (s *Server) twilioGather(c echo.Context) error {
	params, ok := twiliosig.TwilioParams(c)
	if !ok {
		return c.String(http.StatusInternalServerError, "Failed to get Twilio parameters")
	}
	callSid := params["CallSid"]
	speech := strings.TrimSpace(params["SpeechResult"])
	if speech == "" {
		return s.listen(c, agent.MsgRepeat)
	}

	res, err := s.service.Turn(c.Request().Context(), callSid, speech)
	switch {
	case errors.Is(err, agent.ErrSessionNotFound):
		return s.hangup(c, agent.MsgClosed)
	case err != nil:
		log.Printf("[%s] turn failed: %v", callSid, err)
		return s.hangup(c, agent.MsgTemporaryProblem)
	}
	log.Printf("[%s] state=%s", callSid, res.State)
	if res.Ended || res.State == agent.StateEmergency {
		return s.hangup(c, res.Message)
	}
	return s.listen(c, res.Message)
}

func (s *Server) twilioStatus(c echo.Context) error {
	params, ok := twiliosig.TwilioParams(c)
	if !ok {
		return c.String(http.StatusInternalServerError, "Failed to get Twilio parameters")
	}
	callSid, status := params["CallSid"], params["CallStatus"]
	if !terminalCallStatus[status] {
		return c.NoContent(http.StatusNoContent)
	}
	err := s.service.End(c.Request().Context(), callSid)
	if err != nil && !errors.Is(err, agent.ErrSessionNotFound) {
		log.Printf("[%s] end failed: %v", callSid, err)
	}
	return c.NoContent(http.StatusNoContent)
}
