package core

import (
	"fmt"
	"time"

	"golang.org/x/text/language"
)

type MessageKey string

const (
	MsgNotBound         MessageKey = "casdoor.tips.nobind"
	MsgBindInfo         MessageKey = "casdoor.tips.bindinfo"
	MsgLogin            MessageKey = "casdoor.tips.login"
	MsgLinkInvalid      MessageKey = "casdoor.tips.linkvalid"
	MsgBindSuccess      MessageKey = "casdoor.tips.bindsuccess"
	MsgBindError        MessageKey = "casdoor.error.bind"
	MsgScoreNotBound    MessageKey = "casdoor.score.nobind"
	MsgInvalidTarget    MessageKey = "casdoor.score.invalidtarget"
	MsgScoreSuccess     MessageKey = "casdoor.score.success"
	MsgScoreError       MessageKey = "casdoor.score.error"
	MsgCheckInSuccess   MessageKey = "casdoor.checkin.success"
	MsgCheckInError     MessageKey = "casdoor.checkin.error"
	MsgCheckInNoAccount MessageKey = "casdoor.checkin.invalidtarget"
	MsgInternalError    MessageKey = "casdoor.error.internal"
	MsgUsageLink        MessageKey = "casdoor.usage.link"
	MsgUsageScore       MessageKey = "casdoor.usage.score"
	MsgInvalidScore     MessageKey = "casdoor.usage.invalidscore"
	MsgHelp             MessageKey = "casdoor.usage.help"
)

type locale struct {
	tag        language.Tag
	dateLayout string
	messages   map[MessageKey]string
}

var englishMessages = map[MessageKey]string{
	MsgNotBound:         "You have not bound a Casdoor account yet. Use cas.bind to get a login link.",
	MsgBindInfo:         "Bound Casdoor account: %s (bound on %s)",
	MsgLogin:            "Open this link to sign in, then send the page address back with cas.link <link>:\n%s",
	MsgLinkInvalid:      "The link is invalid: it does not contain an authorization code.",
	MsgBindSuccess:      "Successfully bound Casdoor account %s.",
	MsgBindError:        "An error occurred during binding: %s",
	MsgScoreNotBound:    "You have not bound an account yet, so the score cannot be changed.",
	MsgInvalidTarget:    "Please make sure the account information is correct.",
	MsgScoreSuccess:     "Set the score of user %s to %d.",
	MsgScoreError:       "An error occurred while changing the score: %s",
	MsgCheckInSuccess:   "Check-in succeeded! You gained %d points, total %d.",
	MsgCheckInError:     "An error occurred during check-in: %s",
	MsgCheckInNoAccount: "Please make sure your account is bound.",
	MsgInternalError:    "Something went wrong, please try again later.",
	MsgUsageLink:        "Usage: cas.link <link>",
	MsgUsageScore:       "Usage: cas.score <score> [id]",
	MsgInvalidScore:     "The score must be an integer: %s",
	MsgHelp:             "Commands: cas, cas.bind, cas.link <link>, cas.score <score> [id], cas.checkin",
}

var chineseMessages = map[MessageKey]string{
	MsgNotBound:         "你还没有绑定 Casdoor 账号，请使用 cas.bind 获取登录链接。",
	MsgBindInfo:         "已绑定 Casdoor 账号：%s（绑定时间：%s）",
	MsgLogin:            "请打开以下链接登录，登录后使用 cas.link <链接> 发送跳转后的地址：\n%s",
	MsgLinkInvalid:      "链接无效，未找到授权码。",
	MsgBindSuccess:      "成功绑定 Casdoor 账号 %s。",
	MsgBindError:        "绑定过程中发生错误：%s",
	MsgScoreNotBound:    "你还没有绑定账号，无法修改积分。",
	MsgInvalidTarget:    "请确保账户信息正确。",
	MsgScoreSuccess:     "已成功将用户 %s 的积分修改为 %d。",
	MsgScoreError:       "修改积分时发生错误：%s",
	MsgCheckInSuccess:   "签到成功！你本次获得了 %d 积分，当前总积分为 %d。",
	MsgCheckInError:     "签到时发生错误：%s",
	MsgCheckInNoAccount: "请确保已绑定账户。",
	MsgInternalError:    "出现了一些问题，请稍后再试。",
	MsgUsageLink:        "用法：cas.link <链接>",
	MsgUsageScore:       "用法：cas.score <积分> [id]",
	MsgInvalidScore:     "积分必须是整数：%s",
	MsgHelp:             "可用命令：cas、cas.bind、cas.link <链接>、cas.score <积分> [id]、cas.checkin",
}

// Catalog renders user-facing messages for the supported locales
type Catalog struct {
	locales  []locale
	matcher  language.Matcher
	fallback int
}

// NewCatalog creates a catalog whose fallback is the closest match to defaultLocale.
func NewCatalog(defaultLocale string) *Catalog {
	locales := []locale{
		{tag: language.AmericanEnglish, dateLayout: "1/2/2006", messages: englishMessages},
		{tag: language.SimplifiedChinese, dateLayout: "2006/1/2", messages: chineseMessages},
	}
	tags := make([]language.Tag, len(locales))
	for i, l := range locales {
		tags[i] = l.tag
	}

	c := &Catalog{locales: locales, matcher: language.NewMatcher(tags)}
	c.fallback = c.index(defaultLocale, 0)
	return c
}

func (c *Catalog) index(name string, fallback int) int {
	if name == "" {
		return fallback
	}
	_, i, confidence := c.matcher.Match(language.Make(name))
	if confidence == language.No {
		return fallback
	}
	return i
}

func (c *Catalog) resolve(name string) locale {
	return c.locales[c.index(name, c.fallback)]
}

// Text formats the message for key in the requested locale.
func (c *Catalog) Text(localeName string, key MessageKey, args ...any) string {
	l := c.resolve(localeName)
	format, ok := l.messages[key]
	if !ok {
		format, ok = c.locales[c.fallback].messages[key]
	}
	if !ok {
		return string(key)
	}
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

// Date formats t as a date only.
func (c *Catalog) Date(localeName string, t time.Time) string {
	return t.Format(c.resolve(localeName).dateLayout)
}
