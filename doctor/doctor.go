package doctor

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"clack/keyboard"
	"clack/mixer"
	"clack/output"
	"clack/sound"
)

// Run executes interactive diagnostic checks and returns an exit code (0=all pass, 1=any fail).
func Run(out output.Config) int {
	setupInterruptHandler()

	fmt.Println("clack doctor - interactive system diagnostics")
	fmt.Println("==============================================")

	allPass := true

	bank, ok := checkSoundBank()
	if !ok {
		allPass = false
	}
	if allPass && !checkKeyboard() {
		allPass = false
	}
	if allPass && !checkOutput(out, bank) {
		allPass = false
	}

	fmt.Println()
	if allPass {
		fmt.Println("All checks passed!")
		return 0
	}
	fmt.Println("Some checks failed. See details above.")
	return 1
}

func checkSoundBank() (*sound.Bank, bool) {
	fmt.Println()
	fmt.Println("[1/3] Sound synthesis")

	bank, err := sound.NewBank(sound.SampleRate)
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return nil, false
	}
	for _, k := range sound.Kinds {
		l := bank.Template(k)
		ms := float64(len(l.Samples)) * 1000 / float64(bank.SampleRate())
		fmt.Printf("  %-16s %5.1f ms\n", k, ms)
	}
	fmt.Println("  PASS: sound bank built")
	return bank, true
}

func checkKeyboard() bool {
	fmt.Println()
	fmt.Println("[2/3] Keyboard access")

	status, err := keyboard.Diagnose()
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	fmt.Printf("  %s\n", status)

	src, err := keyboard.Open()
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	defer src.Close()

	fmt.Println("Press any key...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ev, err := src.Next(ctx)
	// Whatever was typed is echoed by the terminal too.
	resetTerminal()
	if err != nil {
		fmt.Printf("  FAIL: no key event received: %v\n", err)
		return false
	}
	fmt.Printf("  PASS: key %d %s\n", ev.Code, ev.Transition)
	return true
}

func checkOutput(cfg output.Config, bank *sound.Bank) bool {
	fmt.Println()
	fmt.Println("[3/3] Audio output")

	if devices, err := output.Devices(cfg.Backend); err == nil {
		for _, d := range devices {
			fmt.Printf("  device: %s (%s)\n", d.Name, d.ID)
		}
	}

	sink, err := output.Open(cfg)
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	defer sink.Close()

	m := mixer.New(mixer.DefaultConfig())
	defer m.Close()
	if err := sink.Start(m); err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Press Enter to play a few keystrokes...")
	reader.ReadString('\n')

	for i := 0; i < 4; i++ {
		code := keyboard.KeyA
		if i == 3 {
			code = keyboard.KeySpace
		}
		m.Play(bank.Compose(code, keyboard.Down)...)
		time.Sleep(90 * time.Millisecond)
		m.Play(bank.Compose(code, keyboard.Up)...)
		time.Sleep(60 * time.Millisecond)
	}
	time.Sleep(200 * time.Millisecond)

	fmt.Print("Did you hear typing? [y/n]: ")
	confirm, _ := reader.ReadString('\n')
	confirm = strings.TrimSpace(strings.ToLower(confirm))
	if confirm != "y" && confirm != "yes" {
		fmt.Println("  FAIL: playback not confirmed")
		return false
	}
	fmt.Println("  PASS: playback verified by user")
	return true
}
