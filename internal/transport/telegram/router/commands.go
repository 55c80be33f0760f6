package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"remindbot/internal/nlu"
	"remindbot/internal/registration"
	"remindbot/internal/task"
	"remindbot/pkg/tgui"
)

const (
	greeting = "안녕하세요 😊\n" +
		"저는 당신의 개인비서 봇이에요.\n" +
		"하고 싶은 일을 편하게 말해보세요.\n\n" +
		"예: 매일 스트레칭 할 거야"
	retryPrompt   = "음… 아직 잘 이해 못 했어 😅 다시 말해줄래?"
	storeFailed   = "저장하다가 문제가 생겼어요. 잠시 후 다시 말해 주세요 🙏"
	nluOff        = "지금은 할 일 등록을 쓸 수 없어요. 관리자에게 문의해 주세요."
	maxListedName = 40
)

func (r *Router) handleStart(ctx context.Context, req *Request) error {
	req.Outcome = outcomeGreeted
	return r.reply(ctx, req, greeting)
}

func (r *Router) handleHelp(ctx context.Context, req *Request) error {
	req.Outcome = outcomeHelp
	b := tgui.New().Title("ℹ️", "사용법")
	b.Line("할 일을 평소 말투로 보내면 등록해 드려요.")
	b.Bullets(
		"매일 아침 스트레칭 할 거야",
		"3일마다 저녁에 화분 물 주기",
		"매주 오후에 분리수거",
		"내일 아침에 병원 예약 한 번 알려줘",
	)
	b.Blank()
	for _, c := range r.commands {
		b.KV("/"+c.Name, c.Description)
	}
	_, err := b.Build().Send(ctx, r.sender, req.Chat)
	return err
}

func (r *Router) handleTasks(ctx context.Context, req *Request) error {
	if r.tasks == nil {
		req.Outcome = outcomeStoreError
		return r.reply(ctx, req, storeFailed)
	}
	recs, err := r.tasks.ListByChat(ctx, req.Chat.ChatID)
	if err != nil {
		req.Outcome = outcomeStoreError
		_ = r.reply(ctx, req, storeFailed)
		return err
	}
	req.Outcome = outcomeListed
	b := tgui.New().Title("📋", "등록된 할 일")
	active := 0
	for _, rec := range recs {
		if !rec.Active {
			continue
		}
		active++
		b.RawLine(listLine(rec, r.cfg.Location))
	}
	if active == 0 {
		return r.reply(ctx, req, "아직 등록된 할 일이 없어요. 하고 싶은 일을 말해 보세요!")
	}
	_, err = b.Build().Send(ctx, r.sender, req.Chat)
	return err
}

// listLine renders one /tasks row, last firing in the scheduler's zone.
func listLine(rec task.Record, loc *time.Location) tgui.H {
	line := "• " + tgui.JoinH(" · ",
		tgui.Esc(tgui.TruncRunes(rec.TaskName, maxListedName)),
		tgui.Esc(rec.Label()),
		tgui.I(task.SlotLabel(rec.CheckTime)),
	)
	if rec.LastFiredAt != nil {
		line += tgui.Esc(" (마지막 " + rec.LastFiredAt.In(loc).Format("01/02 15:04") + ")")
	}
	if id := shortID(rec.ID); id != "" {
		line += " " + tgui.Code(id)
	}
	return line
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (r *Router) handleUnknown(ctx context.Context, req *Request) error {
	req.Outcome = outcomeUnknownCmd
	return r.reply(ctx, req, "모르는 명령이에요. /help 를 입력해 보세요.")
}

func (r *Router) handleText(ctx context.Context, req *Request) error {
	text := strings.TrimSpace(req.Text())
	if text == "" {
		return nil
	}
	if r.reg == nil {
		req.Outcome = outcomeNLUOff
		return r.reply(ctx, req, nluOff)
	}
	recs, err := r.reg.RegisterText(ctx, req.Chat.ChatID, text)
	switch {
	case err == nil:
		req.Outcome = outcomeRegistered
		req.Registered = len(recs)
		return r.reply(ctx, req, confirmation(recs))
	case errors.Is(err, registration.ErrNotATask):
		req.Outcome = outcomeChat
		return r.reply(ctx, req, "이렇게 말씀하셨군요 👂\n👉 "+text)
	case errors.Is(err, nlu.ErrParse):
		req.Outcome = outcomeNotParsed
		return r.reply(ctx, req, retryPrompt)
	case errors.Is(err, nlu.ErrUnavailable):
		req.Outcome = outcomeNLUOff
		return r.reply(ctx, req, nluOff)
	}
	var verr *task.ValidationError
	if errors.As(err, &verr) {
		req.Outcome = outcomeRejected
		return r.reply(ctx, req, rejection(verr))
	}
	req.Outcome = outcomeStoreError
	_ = r.reply(ctx, req, storeFailed)
	return err
}

func confirmation(recs []task.Record) string {
	if len(recs) == 0 {
		return retryPrompt
	}
	first := recs[0]
	slots := make([]string, 0, len(recs))
	for _, rec := range recs {
		slots = append(slots, task.SlotLabel(rec.CheckTime))
	}
	return fmt.Sprintf("✅ 등록했어요!\n📝 %s\n🔁 %s\n⏰ %s", first.TaskName, first.Label(), strings.Join(slots, ", "))
}

func rejection(err *task.ValidationError) string {
	var why string
	switch {
	case errors.Is(err, task.ErrEmptyTaskName):
		why = "무엇을 할지 알려 주세요."
	case errors.Is(err, task.ErrInvalidFrequency):
		why = "얼마나 자주 할지 알려 주세요. (한 번, 매일, 며칠마다, 매주)"
	case errors.Is(err, task.ErrMissingOrInvalidInterval):
		why = "며칠마다 할지 숫자로 알려 주세요."
	case errors.Is(err, task.ErrInvalidCheckTimes):
		why = "언제 알려 드릴지 알려 주세요. (아침, 오후, 저녁)"
	default:
		return retryPrompt
	}
	return "🤔 " + why
}
