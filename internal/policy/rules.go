package policy

// builtinRules is the built-in risk classification set, compiled into every
// snapshot ahead of user-configured rules. Explanations are written to be
// shown to the user verbatim on a warning or block.
var builtinRules = []Rule{
	// Critical: filesystem and disk destruction.
	{`rm\s+(-[a-zA-Z-]+\s+)*(--no-preserve-root\s+)?(/|~|\$HOME|/\*|~/\*)\s*$`, TierCritical, "Recursive delete of root"},
	{`rm\s+(-[a-zA-Z-]+\s+)*--no-preserve-root`, TierCritical, "Bypasses root deletion protection"},
	{`dd\s+\S*.*of=/dev/(sd|hd|nvme|vd)`, TierCritical, "Raw write to a block device"},
	{`mkfs(\.\w+)?\s+(\S+\s+)*/dev/`, TierCritical, "Formats a block device"},
	{`>\s*/dev/(sd|hd|nvme|vd)[a-z0-9]*`, TierCritical, "Direct write to a disk device"},
	{`shred\s+(-\S+\s+)*/dev/`, TierCritical, "Destroys data on a disk device"},

	// Critical: fork bombs and backdoors.
	{`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`, TierCritical, "Fork bomb"},
	{`(curl|wget)\s+.*\|\s*sudo\s+(bash|sh|zsh)`, TierCritical, "Pipes a remote script into a root shell"},
	{`nc\s+(-\S+\s+)*-\S*e\S*\s+/bin/(ba)?sh`, TierCritical, "Netcat shell binding"},

	// High: privilege escalation and system modification.
	{`sudo\s+su(\s|$)`, TierHigh, "Unrestricted root shell"},
	{`sudo\s+rm\s`, TierHigh, "Deletes files with elevated privileges"},
	{`sudo\s+\S*chmod\s+\S*u\+s`, TierHigh, "Adds a setuid bit with elevated privileges"},
	{`(curl|wget)\s+.*\|\s*(bash|sh|zsh|fish)`, TierHigh, "Pipes a remote script into a shell"},
	{`(rm|mv|chmod|chown)\s+.*\s(/bin|/sbin|/usr/bin|/usr/sbin|/etc|/boot)(/|\s|$)`, TierHigh, "Modifies a critical system directory"},
	{`chmod\s+(-R\s+)?777\s+/`, TierHigh, "World-writable permissions from root"},
	{`>\s*/etc/`, TierHigh, "Overwrites a system configuration file"},
	{`crontab\s+-r`, TierHigh, "Removes all cron jobs"},
	{`sudo\s+(systemctl|service)\s+(stop|disable|mask)`, TierHigh, "Disables a system service"},
	{`docker\s+run\s+.*--privileged`, TierHigh, "Container with full host access"},
	{`git\s+push\s+.*(--force|-f)(\s|$)`, TierHigh, "Force push rewrites remote history"},

	// Moderate: disruptive but recoverable operations.
	{`kill\s+-9\s+(-1|1)\s*$`, TierModerate, "Force-kills init or all processes"},
	{`killall\s+(-9\s+)?\w+`, TierModerate, "Force-kills processes by name"},
	{`iptables\s+(-\S+\s+)*-F`, TierModerate, "Flushes firewall rules"},
	{`ufw\s+disable`, TierModerate, "Disables the firewall"},
	{`(apt|apt-get|yum|dnf)\s+\S*\s*remove\s+.*--force`, TierModerate, "Forces package removal past dependency checks"},
	{`pip3?\s+install\s+.*--break-system-packages`, TierModerate, "Bypasses system package protections"},
	{`alias\s+(rm|mv|cp|dd)=`, TierModerate, "Shadows a destructive command with an alias"},
	{`git\s+(reset\s+--hard|clean\s+(-\S+\s+)*-\S*f)`, TierModerate, "Discards uncommitted work"},

	// Low: worth knowing about, never worth interrupting for.
	{`kill\s+-9\s+\d+`, TierLow, "Force-kills a process"},
	{`export\s+PATH=`, TierLow, "Overrides PATH"},
	{`ssh\s+\S+@\S+`, TierLow, "Opens a remote shell"},
	{`scp\s+\S+`, TierLow, "Copies files to or from a remote host"},
	{`chmod\s+[0-7]{3,4}\s+`, TierLow, "Changes file permissions"},
}
