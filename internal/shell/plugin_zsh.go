package shell

// ZshPlugin is the zsh adapter source. A preexec hook validates each command
// with the daemon and interrupts blocked ones; a precmd hook reports the
// outcome and surfaces any correction. Every daemon call degrades to a plain
// shell when the daemon is away.
const ZshPlugin = `# shellguard shell plugin — auto-generated, do not edit manually
# Source this file from your ~/.zshrc:
#   source ~/.config/shellguard/shellguard.plugin.zsh

_shellguard_session="$(shellguard session start --shell zsh --pid $$ 2>/dev/null)"

_shellguard_preexec() {
  _shellguard_cmd="$1"
  # Skip shellguard's own invocations.
  [[ "$1" =~ ^[[:space:]]*(.*\/)?shellguard[[:space:]] ]] && return
  if ! shellguard check --session "$_shellguard_session" -- "$1"; then
    _shellguard_cmd=""
    kill -INT $$
  fi
}

_shellguard_precmd() {
  local exit_code=$?
  [[ -n "$_shellguard_cmd" ]] || return
  local suggestion
  suggestion="$(shellguard report --session "$_shellguard_session" --exit $exit_code -- "$_shellguard_cmd" 2>/dev/null)"
  if [[ -n "$suggestion" ]]; then
    _shellguard_last_suggestion="$suggestion"
    print -P "%F{cyan}did you mean:%f $suggestion  %F{240}(ctrl-g to use)%f"
  fi
  _shellguard_cmd=""
}

# Ctrl-G inserts the last suggestion into the command line.
_shellguard_insert_suggestion() {
  [[ -n "$_shellguard_last_suggestion" ]] || return
  BUFFER="$_shellguard_last_suggestion"
  CURSOR=${#BUFFER}
}
zle -N _shellguard_insert_suggestion
bindkey '^G' _shellguard_insert_suggestion

_shellguard_zshexit() {
  shellguard session end --session "$_shellguard_session" 2>/dev/null
}

autoload -Uz add-zsh-hook
add-zsh-hook preexec _shellguard_preexec
add-zsh-hook precmd _shellguard_precmd
add-zsh-hook zshexit _shellguard_zshexit
`
