package shell

// BashPlugin is the bash adapter source. With extdebug set, a DEBUG trap
// returning non-zero cancels the command about to run, which is how blocks
// are enforced. PROMPT_COMMAND reports outcomes.
const BashPlugin = `# shellguard shell plugin — auto-generated, do not edit manually
# Source this file from your ~/.bashrc:
#   source ~/.config/shellguard/shellguard.plugin.bash

shopt -s extdebug

_shellguard_session="$(shellguard session start --shell bash --pid $$ 2>/dev/null)"

_shellguard_preexec() {
  local cmd="$BASH_COMMAND"
  [[ "$cmd" =~ ^[[:space:]]*(.*\/)?shellguard[[:space:]] ]] && return 0
  [[ "$cmd" == "$PROMPT_COMMAND" ]] && return 0
  _shellguard_cmd="$cmd"
  if ! shellguard check --session "$_shellguard_session" -- "$cmd"; then
    _shellguard_cmd=""
    return 1
  fi
  return 0
}
trap '_shellguard_preexec' DEBUG

_shellguard_precmd() {
  local exit_code=$?
  [[ -n "$_shellguard_cmd" ]] || return
  local suggestion
  suggestion="$(shellguard report --session "$_shellguard_session" --exit $exit_code -- "$_shellguard_cmd" 2>/dev/null)"
  if [[ -n "$suggestion" ]]; then
    echo "did you mean: $suggestion"
  fi
  _shellguard_cmd=""
}
PROMPT_COMMAND="_shellguard_precmd${PROMPT_COMMAND:+; $PROMPT_COMMAND}"

trap 'shellguard session end --session "$_shellguard_session" 2>/dev/null' EXIT
`
