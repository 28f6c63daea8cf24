package taxonomy

import "regexp"

// Rule maps candidate names matching Pattern onto a canonical category.
type Rule struct {
	Pattern  *regexp.Regexp
	Category int
}

// keywordRules is checked top to bottom. Specific clusters come before the
// generic dev-tool cluster, which would otherwise swallow names like
// "proxy tool".
var keywordRules = []struct {
	category int
	pattern  string
}{
	{ProxyTools, `proxy|\bvpn\b|shadowsocks|v2ray|xray|clash|trojan|wireguard|代理|翻墙|科学上网|梯子`},
	{AITools, `\bai\b|artificial intelligence|machine learning|deep learning|\bml\b|\bllms?\b|\bgpt|chatbot|\bagents?\b|neural|\bnlp\b|diffusion|人工智能|大模型|机器学习|深度学习|智能体`},
	{DevOps, `devops|docker|kubernetes|\bk8s\b|container|ci/cd|\bci\b|deploy|monitor|observability|terraform|ansible|运维|部署|容器|监控`},
	{Editor, `editor|\bide\b|\bvim\b|neovim|emacs|vscode|vs code|编辑器`},
	{CLITools, `\bcli\b|command[- ]?line|terminal|\bshell\b|console|\btui\b|命令行|终端`},
	{Frontend, `front[- ]?end|\breact\b|\bvue\b|angular|svelte|\bcss\b|\bui\b|web\s*ui|component|前端|组件|界面`},
	{Backend, `back[- ]?end|server|\bapi\b|web\s*framework|microservice|后端|服务端|服务器`},
	{Database, `database|\bdb\b|\bsql|nosql|redis|mongo|postgres|mysql|sqlite|数据库`},
	{SecurityTools, `security|pentest|vulnerab|exploit|\bctf\b|安全|渗透|漏洞`},
	{DownloadTools, `download|torrent|\baria2\b|下载`},
	{MediaTools, `media|video|audio|music|image|photo|player|stream|视频|音频|音乐|图片|媒体|播放器`},
	{LearningResources, `learn|tutorial|course|\bbooks?\b|awesome|interview|roadmap|guide|cheat\s*sheet|学习|教程|面试|资源|书`},
	{SystemTools, `system|\bos\b|linux|windows|macos|kernel|driver|系统`},
	{DevTools, `dev\s*tool|developer|tool|\bsdk\b|library|framework|utilit|开发|工具|库`},
}

var defaultRules = compileRules()

func compileRules() []Rule {
	rules := make([]Rule, 0, len(keywordRules))
	for _, kr := range keywordRules {
		rules = append(rules, Rule{
			Pattern:  regexp.MustCompile(`(?i)` + kr.pattern),
			Category: kr.category,
		})
	}
	return rules
}

// DefaultRules returns a copy of the built-in ordered rule table.
func DefaultRules() []Rule {
	out := make([]Rule, len(defaultRules))
	copy(out, defaultRules)
	return out
}
