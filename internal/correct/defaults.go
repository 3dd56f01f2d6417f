package correct

// defaultTypos maps common first-token typos to their fix. User-configured
// and learned entries are merged over these at engine construction.
var defaultTypos = map[string]string{
	"gti":    "git",
	"gut":    "git",
	"gi":     "git",
	"got":    "git",
	"sl":     "ls",
	"l s":    "ls",
	"cd..":   "cd ..",
	"claer":  "clear",
	"cler":   "clear",
	"clea":   "clear",
	"grpe":   "grep",
	"gerp":   "grep",
	"mkdri":  "mkdir",
	"mdkir":  "mkdir",
	"pyhton": "python",
	"pytohn": "python",
	"sduo":   "sudo",
	"suod":   "sudo",
	"amke":   "make",
	"maek":   "make",
	"dokcer": "docker",
	"dcoker": "docker",
	"kubctl": "kubectl",
	"kubeclt": "kubectl",
	"vmi":    "vim",
	"nmp":    "npm",
	"yran":   "yarn",
	"carg":   "cargo",
	"tuch":   "touch",
	"ehco":   "echo",
}

// knownTools is the dictionary used for edit-distance matching when the
// diagnostic indicates "command not found".
var knownTools = []string{
	"git", "ls", "cd", "cat", "grep", "find", "make", "man", "less", "more",
	"echo", "touch", "mkdir", "rmdir", "cp", "mv", "rm", "ln", "pwd", "head",
	"tail", "sed", "awk", "sort", "uniq", "wc", "tar", "gzip", "curl", "wget",
	"ssh", "scp", "rsync", "ping", "top", "htop", "ps", "kill", "chmod",
	"chown", "sudo", "which", "whoami", "env", "export", "history", "clear",
	"docker", "kubectl", "helm", "terraform", "python", "python3", "pip",
	"pip3", "node", "npm", "npx", "yarn", "pnpm", "go", "cargo", "rustc",
	"java", "javac", "mvn", "gradle", "ruby", "gem", "bundle", "php",
	"composer", "vim", "nvim", "nano", "emacs", "code", "tmux", "screen",
	"systemctl", "journalctl", "service", "apt", "apt-get", "yum", "dnf",
	"brew", "pacman", "snap", "jq", "yq", "xargs", "tee", "diff", "patch",
}
