package detector

// scriptRulesYAML contains the built-in rules for lifecycle install
// script analysis.
const scriptRulesYAML = `
version: "1.0"
rules:
  - id: script-remote-payload
    name: "Remote Payload Execution"
    description: "Install script downloads and executes a remote payload"
    severity: critical
    category: malicious-script
    patterns:
      - "curl[^|;&]*\\|\\s*(ba)?sh"
      - "wget[^|;&]*\\|\\s*(ba)?sh"
      - "curl[^|;&]*\\|\\s*node"
      - "wget[^|;&]*\\|\\s*node"
      - "iwr[^|;&]*\\|\\s*iex"
      - "Invoke-WebRequest[^|;&]*\\|"

  - id: script-obfuscated-body
    name: "Obfuscated Script Body"
    description: "Install script decodes an encoded payload before running it"
    severity: critical
    category: malicious-script
    patterns:
      - "base64\\s+(-d|--decode)"
      - "echo\\s+[A-Za-z0-9+/=]{40,}"
      - "\\\\x[0-9a-fA-F]{2}\\\\x[0-9a-fA-F]{2}\\\\x[0-9a-fA-F]{2}"
    substrings:
      - "Buffer.from("
      - "String.fromCharCode"

  - id: script-reverse-shell
    name: "Reverse Shell Attempt"
    description: "Install script spawns a reverse shell"
    severity: critical
    category: malicious-script
    patterns:
      - "nc\\s.*-e"
      - "bash\\s+-i"
      - "mkfifo"
    substrings:
      - "/dev/tcp/"

  - id: script-writes-outside-package
    name: "Writes Outside Package Directory"
    description: "Install script writes to user or system paths outside the package"
    severity: high
    category: malicious-script
    patterns:
      - ">\\s*~/\\."
      - ">>\\s*~/\\."
    substrings:
      - "/etc/passwd"
      - "/etc/shadow"
      - "~/.bashrc"
      - "~/.zshrc"
      - "~/.profile"
      - "crontab"

  - id: script-dynamic-eval
    name: "Dynamic Code Execution"
    description: "Install script evaluates dynamically constructed code"
    severity: high
    category: malicious-script
    substrings:
      - "eval("
      - "new Function("
      - "vm.runInContext"
      - "vm.runInNewContext"
      - "child_process"
`

// credNetRulesYAML contains the built-in rules for the credential and
// network pattern scan.
const credNetRulesYAML = `
version: "1.0"
rules:
  - id: cred-env-harvest
    name: "Credential Environment Harvesting"
    description: "Reads sensitive credential environment variables at install time"
    severity: critical
    category: credential-access
    patterns:
      - "process\\.env\\.[A-Z_]*(TOKEN|SECRET|KEY|PASSWORD)"
    substrings:
      - "AWS_SECRET"
      - "AWS_ACCESS_KEY"
      - "GITHUB_TOKEN"
      - "NPM_TOKEN"
      - "DOCKER_PASSWORD"
      - "PRIVATE_KEY"

  - id: cred-env-dump
    name: "Environment Dump"
    description: "Captures the whole process environment"
    severity: high
    category: credential-access
    patterns:
      - "JSON\\.stringify\\(\\s*process\\.env\\s*\\)"
      - "printenv"
      - "env\\s*>\\s*\\S+"

  - id: cred-sensitive-files
    name: "Sensitive File Access"
    description: "Reads credential stores from the user's home directory"
    severity: critical
    category: credential-access
    substrings:
      - ".ssh/id_rsa"
      - ".aws/credentials"
      - ".npmrc"
      - ".netrc"
      - ".docker/config.json"

  - id: net-nonregistry-egress
    name: "Non-Registry Network Egress"
    description: "Contacts hosts other than the package registry during install"
    severity: high
    category: network-access
    patterns:
      - "https?://\\d+\\.\\d+\\.\\d+\\.\\d+"
    substrings:
      - "pastebin.com"
      - "ngrok.io"
      - "webhook.site"
      - "requestbin"
      - "discord.com/api/webhooks"
      - "bit.ly"
      - "tinyurl"

  - id: net-raw-socket
    name: "Raw Socket Use"
    description: "Opens raw network connections at install time"
    severity: medium
    category: network-access
    substrings:
      - "net.connect"
      - "net.createConnection"
      - "dgram.createSocket"
      - "tls.connect"
`

var (
	defaultScriptRules  = mustParseRules(scriptRulesYAML)
	defaultCredNetRules = mustParseRules(credNetRulesYAML)
)
